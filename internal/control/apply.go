package control

import (
	"net"
	"strconv"
	"time"

	"github.com/rjboer/godemod/internal/channel"
)

// ApplyResult reports what a command touched beyond a channel's own state,
// so the caller (dispatch.go, whose hooks cmd/radiod wires to
// internal/worker's Manager) knows whether to tear the worker down and restart it, rebuild
// the channelizer's filter/plan, or push a gain/atten change to the
// frontend.
type ApplyResult struct {
	RestartRequired         bool
	FilterRebuildRequired   bool
	SpectrumRebuildRequired bool
	FrontendGainDB          *float64
	FrontendAttenDB         *float64
}

type applySnapshot struct {
	demodType channel.DemodType
	encoding  string
	channels  int
	minIF     float64
	maxIF     float64
	kaiser    float64
	f2Block   int
	f2Kaiser  float64
	binCount  int
	binBW     float64
}

func snapshot(ch *channel.Channel) applySnapshot {
	return applySnapshot{
		demodType: ch.Demod.Type,
		encoding: ch.Output.Encoding,
		channels: ch.Output.Channels,
		minIF: ch.Filter.MinIF,
		maxIF: ch.Filter.MaxIF,
		kaiser: ch.Filter.KaiserBeta,
		f2Block: ch.Filter.Filter2Blocking,
		f2Kaiser: ch.Filter.Filter2KaiserBeta,
		binCount: ch.Demod.BinCount,
		binBW: ch.Demod.NoncoherentBinBW,
	}
}

// ApplyCommand applies a decoded TLV command to a channel following
// rules: tags apply in packet order except LOW_EDGE,
// HIGH_EDGE, NONCOHERENT_BIN_BW and BIN_COUNT, which are deferred so a
// PRESET tag earlier in the same packet cannot clobber them, and the
// lifetime rule (freq != 0 at arrival time refreshes the idle countdown).
func ApplyCommand(ch *channel.Channel, tlvs []TLV, presets *Presets) ApplyResult {
	freqAtArrival := ch.Tune.Freq
	before := snapshot(ch)

	var deferred []TLV
	var result ApplyResult
	for _, t := range tlvs {
		if deferredOverrideTags[t.Tag] {
			deferred = append(deferred, t)
			continue
		}
		applyTag(ch, presets, t, &result)
	}
	for _, t := range deferred {
		applyTag(ch, presets, t, &result)
	}

	after := snapshot(ch)
	if after.demodType != before.demodType || after.encoding != before.encoding || after.channels != before.channels {
		result.RestartRequired = true
	} else if after.minIF != before.minIF || after.maxIF != before.maxIF || after.kaiser != before.kaiser ||
		after.f2Block != before.f2Block || after.f2Kaiser != before.f2Kaiser {
		result.FilterRebuildRequired = true
	}
	if after.binCount != before.binCount || after.binBW != before.binBW {
		result.SpectrumRebuildRequired = true
	}

	if freqAtArrival != 0 {
		ch.RefreshLifetime()
	}
	return result
}

func applyTag(ch *channel.Channel, presets *Presets, t TLV, result *ApplyResult) {
	switch t.Tag {
	case COMMAND_TAG:
		ch.SetLastCommandTag(DecodeInt32(t.Value))
	case RADIO_FREQUENCY:
		ch.Tune.Freq = DecodeFloat64(t.Value)
	case SHIFT_FREQUENCY:
		ch.Tune.Shift = DecodeFloat64(t.Value)
	case DOPPLER_FREQUENCY:
		ch.Tune.Doppler = DecodeFloat64(t.Value)
	case DOPPLER_FREQUENCY_RATE:
		ch.Tune.DopplerRate = DecodeFloat64(t.Value)
	case LOW_EDGE:
		ch.Filter.MinIF = DecodeFloat64(t.Value)
	case HIGH_EDGE:
		ch.Filter.MaxIF = DecodeFloat64(t.Value)
	case KAISER_BETA:
		ch.Filter.KaiserBeta = float64(DecodeFloat32(t.Value))
	case FILTER2:
		ch.Filter.Filter2Blocking = int(DecodeInt32(t.Value))
	case FILTER2_KAISER_BETA:
		ch.Filter.Filter2KaiserBeta = float64(DecodeFloat32(t.Value))
	case PRESET:
		if presets != nil {
			_ = presets.Apply(ch, DecodeString(t.Value))
		}
	case DEMOD_TYPE:
		ch.Demod.Type = channel.DemodType(DecodeInt32(t.Value))
	case INDEPENDENT_SIDEBAND:
		ch.Demod.IndependentSideband = DecodeBool(t.Value)
	case THRESH_EXTEND:
		ch.Demod.ThreshExtend = DecodeBool(t.Value)
	case SQUELCH_OPEN:
		ch.Squelch.OpenThreshold = decodeSquelchThreshold(float64(DecodeFloat32(t.Value)))
	case SQUELCH_CLOSE:
		ch.Squelch.CloseThreshold = decodeSquelchThreshold(float64(DecodeFloat32(t.Value)))
	case SNR_SQUELCH:
		ch.Squelch.SNREnable = DecodeBool(t.Value)
	case HEADROOM:
		ch.Output.Headroom = float64(DecodeFloat32(t.Value))
	case AGC_ENABLE:
		ch.Demod.AGCEnable = DecodeBool(t.Value)
	case GAIN:
		ch.Output.Gain = float64(DecodeFloat32(t.Value))
	case AGC_HANGTIME:
		ch.Demod.AGCHangtime = time.Duration(DecodeInt32(t.Value)) * time.Millisecond
	case AGC_RECOVERY_RATE:
		ch.Demod.AGCRecoveryRate = float64(DecodeFloat32(t.Value))
	case AGC_THRESHOLD:
		ch.Demod.AGCThresholdDB = float64(DecodeFloat32(t.Value))
	case NONCOHERENT_BIN_BW:
		ch.Demod.NoncoherentBinBW = float64(DecodeFloat32(t.Value))
	case BIN_COUNT:
		ch.Demod.BinCount = int(DecodeInt32(t.Value))
	case PLL_ENABLE:
		ch.Demod.PLLEnable = DecodeBool(t.Value)
	case PLL_BW:
		ch.Demod.PLLBW = float64(DecodeFloat32(t.Value))
	case PLL_SQUARE:
		ch.Demod.PLLSquare = DecodeBool(t.Value)
	case ENVELOPE:
		ch.Demod.Envelope = DecodeBool(t.Value)
	case OUTPUT_CHANNELS:
		ch.Output.Channels = int(DecodeInt32(t.Value))
	case OUTPUT_ENCODING:
		ch.Output.Encoding = DecodeString(t.Value)
	case MINPACKET:
		ch.Output.MinPacket = int(DecodeInt32(t.Value))
	case OUTPUT_DATA_DEST_SOCKET:
		// Family byte, raw address bytes, big-endian port (see PutSocket).
		if v := t.Value; len(v) >= 3 {
			ip := net.IP(v[1 : len(v)-2])
			port := int(v[len(v)-2])<<8 | int(v[len(v)-1])
			ch.Output.DestSocket = net.JoinHostPort(ip.String(), strconv.Itoa(port))
		}
	case STATUS_INTERVAL:
		ch.SetOutputInterval(int(DecodeInt32(t.Value)))
	case RF_GAIN:
		v := float64(DecodeFloat32(t.Value))
		result.FrontendGainDB = &v
	case RF_ATTEN:
		v := float64(DecodeFloat32(t.Value))
		result.FrontendAttenDB = &v
	case OUTPUT_SSRC, OPUS_BIT_RATE, SETOPTS, CLEAROPTS, FIRST_LO_FREQUENCY:
		// OUTPUT_SSRC only routes the command (dispatch.go); OPUS_BIT_RATE
		// belongs to a transport-side encoder this build doesn't carry;
		// SETOPTS/CLEAROPTS bitmask options and FIRST_LO_FREQUENCY (which
		// tracks the frontend's own LO, not a per-channel field) have no
		// channel-side effect here.
	}
}
