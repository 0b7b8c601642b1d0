package sdrxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse decodes the raw IIOD context XML into ctx, parses every channel's
// scan-element format string, and builds ctx.Index.
func (ctx *SDRContext) Parse(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("sdrxml: empty XML document")
	}
	if err := xml.Unmarshal(raw, ctx); err != nil {
		return fmt.Errorf("sdrxml: parse: %w", err)
	}
	for di := range ctx.Device {
		dev := &ctx.Device[di]
		for ci := range dev.Channel {
			ch := &dev.Channel[ci]
			if ch.ScanElementRaw == nil {
				continue
			}
			pf, err := ParseScanFormat(ch.ScanElementRaw.Format)
			if err != nil {
				return fmt.Errorf("sdrxml: device %s channel %s: %w", dev.Name, ch.ID, err)
			}
			if idx, err := strconv.Atoi(ch.ScanElementRaw.Index); err == nil {
				pf.Index = uint32(idx)
			}
			ch.ParsedFormat = pf
			ch.Enabled = true
		}
	}
	ctx.Index = BuildIndex(ctx)
	return nil
}

// ParseIIODXML parses raw into a fresh SDRContext.
func ParseIIODXML(raw []byte) (*SDRContext, error) {
	var ctx SDRContext
	if err := ctx.Parse(raw); err != nil {
		return nil, err
	}
	return &ctx, nil
}

// ParseScanFormat decodes a libiio scan-element format ABI string, e.g.
// "le:S12/16>>0" (little-endian, signed, 12 significant bits stored in 16,
// shifted right 0) or "be:u16/16>>0X2" (an "X2" suffix repeats the element
// twice per sample, used by some complex/paired channels).
func ParseScanFormat(s string) (*ScanFormat, error) {
	s = strings.TrimSpace(s)
	endianness, rest, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("malformed scan format %q: missing endianness prefix", s)
	}
	pf := &ScanFormat{Repeat: 1}
	switch endianness {
	case "be":
		pf.IsBE = true
	case "le":
		pf.IsBE = false
	default:
		return nil, fmt.Errorf("malformed scan format %q: unknown endianness %q", s, endianness)
	}

	if repeatIdx := strings.IndexByte(rest, 'X'); repeatIdx >= 0 {
		n, err := strconv.Atoi(rest[repeatIdx+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed scan format %q: bad repeat suffix: %w", s, err)
		}
		pf.Repeat = uint32(n)
		rest = rest[:repeatIdx]
	}

	signAndSizes, shiftStr, hasShift := strings.Cut(rest, ">>")
	if !hasShift {
		return nil, fmt.Errorf("malformed scan format %q: missing shift", s)
	}
	shift, err := strconv.Atoi(shiftStr)
	if err != nil {
		return nil, fmt.Errorf("malformed scan format %q: bad shift: %w", s, err)
	}
	pf.Shift = uint32(shift)

	if len(signAndSizes) == 0 {
		return nil, fmt.Errorf("malformed scan format %q: missing sign/size", s)
	}
	switch signAndSizes[0] {
	case 's', 'S':
		pf.IsSigned = true
	case 'u', 'U':
		pf.IsSigned = false
	default:
		return nil, fmt.Errorf("malformed scan format %q: unknown sign %q", s, signAndSizes[0])
	}
	bitsAndLen := signAndSizes[1:]
	bitsStr, lenStr, hasLen := strings.Cut(bitsAndLen, "/")
	if !hasLen {
		return nil, fmt.Errorf("malformed scan format %q: missing bits/length", s)
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil {
		return nil, fmt.Errorf("malformed scan format %q: bad bit count: %w", s, err)
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil {
		return nil, fmt.Errorf("malformed scan format %q: bad storage length: %w", s, err)
	}
	pf.Bits = uint32(bits)
	pf.Length = uint32(length)
	return pf, nil
}

// BuildIndex constructs lookup tables over an already-parsed SDRContext.
func BuildIndex(ctx *SDRContext) *IIODIndex {
	idx := &IIODIndex{
		DevicesByID:   make(map[string]*DeviceEntry),
		DevicesByName: make(map[string]*DeviceEntry),
		Channels:      make(map[string]map[string]*ChannelEntry),
		AttrFiles:     make(map[string]map[string]map[string]string),
	}

	for i := range ctx.Device {
		dev := &ctx.Device[i]
		idx.NoDevices++
		if dev.ID != "" {
			idx.DevicesByID[dev.ID] = dev
		}
		if dev.Name != "" {
			idx.DevicesByName[dev.Name] = dev
		}

		if _, ok := idx.Channels[dev.Name]; !ok {
			idx.Channels[dev.Name] = make(map[string]*ChannelEntry)
		}
		if _, ok := idx.AttrFiles[dev.Name]; !ok {
			idx.AttrFiles[dev.Name] = make(map[string]map[string]string)
		}

		for ci := range dev.Channel {
			ch := &dev.Channel[ci]
			chName := ch.ID
			if ch.Name != "" {
				chName = ch.Name
			}
			idx.Channels[dev.Name][chName] = ch
			idx.NoChannels++

			if _, ok := idx.AttrFiles[dev.Name][chName]; !ok {
				idx.AttrFiles[dev.Name][chName] = make(map[string]string)
			}
			for _, attr := range ch.Attribute {
				if attr.Name != "" && attr.Filename != "" {
					idx.AttrFiles[dev.Name][chName][attr.Name] = attr.Filename
				}
			}
		}
	}
	return idx
}

func (idx *IIODIndex) LookupDevice(identifier string) (*DeviceEntry, error) {
	if d, ok := idx.DevicesByName[identifier]; ok {
		return d, nil
	}
	if d, ok := idx.DevicesByID[identifier]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("sdrxml: device not found: %q", identifier)
}

func (idx *IIODIndex) LookupChannel(devName, chName string) (*ChannelEntry, error) {
	devMap, ok := idx.Channels[devName]
	if !ok {
		return nil, fmt.Errorf("sdrxml: device not found: %q", devName)
	}
	if ch, ok := devMap[chName]; ok {
		return ch, nil
	}
	for _, ch := range devMap {
		if ch.ID == chName {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("sdrxml: channel %q not found in device %q", chName, devName)
}

func (idx *IIODIndex) LookupAttributeFile(dev, ch, attr string) (string, error) {
	devMap, ok := idx.AttrFiles[dev]
	if !ok {
		return "", fmt.Errorf("sdrxml: device %q not found", dev)
	}
	chMap, ok := devMap[ch]
	if !ok {
		return "", fmt.Errorf("sdrxml: channel %q not found in device %q", ch, dev)
	}
	if f, ok := chMap[attr]; ok {
		return f, nil
	}
	return "", fmt.Errorf("sdrxml: attribute %q not found in device %q channel %q", attr, dev, ch)
}
