package sdrxml

import (
	"encoding/binary"
	"sort"
)

// BuildDecodeMap lays out how one interleaved sample frame from this
// device's RX buffer is sliced into its enabled channels, in scan-index
// order (the wire order need not match the XML declaration order).
func (dev *DeviceEntry) BuildDecodeMap() {
	enabled := make([]*ChannelEntry, 0, len(dev.Channel))
	for i := range dev.Channel {
		if dev.Channel[i].Enabled && dev.Channel[i].ParsedFormat != nil {
			enabled = append(enabled, &dev.Channel[i])
		}
	}
	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].ParsedFormat.Index < enabled[j].ParsedFormat.Index
	})

	dm := DecodeMap{}
	var size uint32
	for _, ch := range enabled {
		elementBytes := (ch.ParsedFormat.Length + 7) / 8
		totalSize := elementBytes * ch.ParsedFormat.Repeat
		ch.SampleSize = totalSize
		dm.Entries = append(dm.Entries, DecodeEntry{
			Channel:   ch,
			Offset:    size,
			Length:    ch.ParsedFormat.Length,
			TotalSize: totalSize,
		})
		size += totalSize
	}
	dm.SampleSize = size
	dev.DecodeMap = dm
}

// extract decodes one channel's raw storage word per the ABI shift/mask/
// sign-extend/scale rules a libiio scan format describes.
func extract(raw []byte, pf *ScanFormat) int64 {
	var u uint64
	switch len(raw) {
	case 1:
		u = uint64(raw[0])
	case 2:
		if pf.IsBE {
			u = uint64(binary.BigEndian.Uint16(raw))
		} else {
			u = uint64(binary.LittleEndian.Uint16(raw))
		}
	case 4:
		if pf.IsBE {
			u = uint64(binary.BigEndian.Uint32(raw))
		} else {
			u = uint64(binary.LittleEndian.Uint32(raw))
		}
	case 8:
		if pf.IsBE {
			u = binary.BigEndian.Uint64(raw)
		} else {
			u = binary.LittleEndian.Uint64(raw)
		}
	default:
		if pf.IsBE {
			for _, b := range raw {
				u = (u << 8) | uint64(b)
			}
		} else {
			for i := len(raw) - 1; i >= 0; i-- {
				u = (u << 8) | uint64(raw[i])
			}
		}
	}

	if pf.Shift > 0 {
		u >>= pf.Shift
	}

	mask := uint64((1 << pf.Bits) - 1)
	u &= mask

	if pf.IsSigned {
		sign := uint64(1) << (pf.Bits - 1)
		if u&sign != 0 {
			u |= ^mask
		}
	}

	val := int64(u)
	if pf.WithScale {
		return int64(float64(val) * pf.Scale)
	}
	return val
}

// Decode splits buf, a run of one or more interleaved sample frames from
// this device's RX buffer, into per-channel value slices keyed by channel
// name (or ID, if the channel has no name).
func (dev *DeviceEntry) Decode(buf []byte) []map[string][]int64 {
	dm := dev.DecodeMap
	frameSize := int(dm.SampleSize)
	if frameSize == 0 {
		return nil
	}
	count := len(buf) / frameSize
	out := make([]map[string][]int64, count)

	for i := 0; i < count; i++ {
		frame := buf[i*frameSize : (i+1)*frameSize]
		m := make(map[string][]int64, len(dm.Entries))

		for _, e := range dm.Entries {
			pf := e.Channel.ParsedFormat
			per := int((pf.Length + 7) / 8)
			vals := make([]int64, pf.Repeat)
			raw := frame[e.Offset : e.Offset+e.TotalSize]
			for r := uint32(0); r < pf.Repeat; r++ {
				s := int(r) * per
				vals[r] = extract(raw[s:s+per], pf)
			}
			name := e.Channel.Name
			if name == "" {
				name = e.Channel.ID
			}
			m[name] = vals
		}
		out[i] = m
	}
	return out
}
