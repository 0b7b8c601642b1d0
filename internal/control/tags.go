// Package control implements the TLV control/status protocol: a wire
// codec, per-ssrc command dispatch and application ordering, a preset
// table, a status emitter, and the UDP transport that carries all of it.
//
// The wire format and the numeric tag values for COMMAND_TAG, OUTPUT_SSRC,
// RADIO_FREQUENCY, LOW_EDGE, HIGH_EDGE, PRESET, SNR_SQUELCH, SQUELCH_OPEN,
// SQUELCH_CLOSE, NONCOHERENT_BIN_BW, BIN_COUNT and STATUS_INTERVAL are taken
// verbatim from a ka9q-radio-derived control client (its
// encodeInt32/encodeDouble/encodeFloat/encodeString helpers and their call
// sites). The remaining tags are not exercised by that client; they are
// assigned spare byte values in the same numbering bands (frequency/filter
// tags in the 0x20s, demod/AGC/squelch tags in the 0x50s-0x60s,
// output/session tags in the 0x60s) so the wire format stays internally
// consistent.
package control

// Tag identifies a TLV field on the control/status wire.
type Tag byte

const (
	EOL Tag = 0x00

	COMMAND_TAG Tag = 0x01

	OUTPUT_SSRC Tag = 0x12

	RADIO_FREQUENCY        Tag = 0x21
	FIRST_LO_FREQUENCY     Tag = 0x22
	SHIFT_FREQUENCY        Tag = 0x23
	DOPPLER_FREQUENCY      Tag = 0x24
	DOPPLER_FREQUENCY_RATE Tag = 0x25
	LOW_EDGE               Tag = 0x27
	HIGH_EDGE              Tag = 0x28
	KAISER_BETA            Tag = 0x29
	FILTER2                Tag = 0x2A
	FILTER2_KAISER_BETA    Tag = 0x2B

	DEMOD_TYPE           Tag = 0x50
	INDEPENDENT_SIDEBAND Tag = 0x51
	THRESH_EXTEND        Tag = 0x52
	SQUELCH_OPEN         Tag = 0x53
	SQUELCH_CLOSE        Tag = 0x54
	PRESET               Tag = 0x55
	HEADROOM             Tag = 0x56
	AGC_ENABLE           Tag = 0x57
	GAIN                 Tag = 0x58
	AGC_HANGTIME         Tag = 0x59
	AGC_RECOVERY_RATE    Tag = 0x5A
	AGC_THRESHOLD        Tag = 0x5B
	SNR_SQUELCH          Tag = 0x5C
	NONCOHERENT_BIN_BW   Tag = 0x5D
	BIN_COUNT            Tag = 0x5E
	PLL_ENABLE           Tag = 0x5F

	PLL_BW     Tag = 0x60
	PLL_SQUARE Tag = 0x61
	ENVELOPE   Tag = 0x62

	OUTPUT_CHANNELS         Tag = 0x63
	OUTPUT_ENCODING         Tag = 0x64
	OPUS_BIT_RATE           Tag = 0x65
	SETOPTS                 Tag = 0x66
	CLEAROPTS               Tag = 0x67
	RF_ATTEN                Tag = 0x68
	RF_GAIN                 Tag = 0x69
	STATUS_INTERVAL         Tag = 0x6A
	MINPACKET               Tag = 0x6B
	OUTPUT_DATA_DEST_SOCKET Tag = 0x6C

	// Status-only tags, sent by the server in every status snapshot.
	FRONTEND_SAMPLE_RATE Tag = 0x70
	FRONTEND_IF_POWER    Tag = 0x71
	FRONTEND_OVERRANGES  Tag = 0x72
	SECOND_LO_FREQUENCY  Tag = 0x73
	FILTER_BLOCKSIZE     Tag = 0x74
	FILTER_IMPULSE_LEN   Tag = 0x75
	BLOCK_DROPS          Tag = 0x76
	PLL_LOCKED           Tag = 0x77
	PLL_PHASE            Tag = 0x78
	PLL_SNR              Tag = 0x79
	FM_DEVIATION         Tag = 0x7A
	FM_SNR               Tag = 0x7B
	AGC_GAIN             Tag = 0x7C
	SPECTRUM_BIN_DATA    Tag = 0x7D
	PACKETS_IN           Tag = 0x7E
	PACKETS_OUT          Tag = 0x7F
	OUTPUT_SAMPLES       Tag = 0x80
	ERROR_COUNT          Tag = 0x81
)

// packet type byte, the first byte of every datagram.
const (
	PacketStatus byte = 0x00
	PacketCMD    byte = 0x01
)

var tagNames = map[Tag]string{
	COMMAND_TAG:             "COMMAND_TAG",
	OUTPUT_SSRC:             "OUTPUT_SSRC",
	RADIO_FREQUENCY:         "RADIO_FREQUENCY",
	FIRST_LO_FREQUENCY:      "FIRST_LO_FREQUENCY",
	SHIFT_FREQUENCY:         "SHIFT_FREQUENCY",
	DOPPLER_FREQUENCY:       "DOPPLER_FREQUENCY",
	DOPPLER_FREQUENCY_RATE:  "DOPPLER_FREQUENCY_RATE",
	LOW_EDGE:                "LOW_EDGE",
	HIGH_EDGE:               "HIGH_EDGE",
	KAISER_BETA:             "KAISER_BETA",
	FILTER2:                 "FILTER2",
	FILTER2_KAISER_BETA:     "FILTER2_KAISER_BETA",
	DEMOD_TYPE:              "DEMOD_TYPE",
	INDEPENDENT_SIDEBAND:    "INDEPENDENT_SIDEBAND",
	THRESH_EXTEND:           "THRESH_EXTEND",
	SQUELCH_OPEN:            "SQUELCH_OPEN",
	SQUELCH_CLOSE:           "SQUELCH_CLOSE",
	PRESET:                  "PRESET",
	HEADROOM:                "HEADROOM",
	AGC_ENABLE:              "AGC_ENABLE",
	GAIN:                    "GAIN",
	AGC_HANGTIME:            "AGC_HANGTIME",
	AGC_RECOVERY_RATE:       "AGC_RECOVERY_RATE",
	AGC_THRESHOLD:           "AGC_THRESHOLD",
	SNR_SQUELCH:             "SNR_SQUELCH",
	NONCOHERENT_BIN_BW:      "NONCOHERENT_BIN_BW",
	BIN_COUNT:               "BIN_COUNT",
	PLL_ENABLE:              "PLL_ENABLE",
	PLL_BW:                  "PLL_BW",
	PLL_SQUARE:              "PLL_SQUARE",
	ENVELOPE:                "ENVELOPE",
	OUTPUT_CHANNELS:         "OUTPUT_CHANNELS",
	OUTPUT_ENCODING:         "OUTPUT_ENCODING",
	OPUS_BIT_RATE:           "OPUS_BIT_RATE",
	SETOPTS:                 "SETOPTS",
	CLEAROPTS:               "CLEAROPTS",
	RF_ATTEN:                "RF_ATTEN",
	RF_GAIN:                 "RF_GAIN",
	STATUS_INTERVAL:         "STATUS_INTERVAL",
	MINPACKET:               "MINPACKET",
	OUTPUT_DATA_DEST_SOCKET: "OUTPUT_DATA_DEST_SOCKET",
	FRONTEND_SAMPLE_RATE:    "FRONTEND_SAMPLE_RATE",
	FRONTEND_IF_POWER:       "FRONTEND_IF_POWER",
	FRONTEND_OVERRANGES:     "FRONTEND_OVERRANGES",
	SECOND_LO_FREQUENCY:     "SECOND_LO_FREQUENCY",
	FILTER_BLOCKSIZE:        "FILTER_BLOCKSIZE",
	FILTER_IMPULSE_LEN:      "FILTER_IMPULSE_LEN",
	BLOCK_DROPS:             "BLOCK_DROPS",
	PLL_LOCKED:              "PLL_LOCKED",
	PLL_PHASE:               "PLL_PHASE",
	PLL_SNR:                 "PLL_SNR",
	FM_DEVIATION:            "FM_DEVIATION",
	FM_SNR:                  "FM_SNR",
	AGC_GAIN:                "AGC_GAIN",
	SPECTRUM_BIN_DATA:       "SPECTRUM_BIN_DATA",
	PACKETS_IN:              "PACKETS_IN",
	PACKETS_OUT:             "PACKETS_OUT",
	OUTPUT_SAMPLES:          "OUTPUT_SAMPLES",
	ERROR_COUNT:             "ERROR_COUNT",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// deferredOverrideTags is the set of tags applied after every other tag in
// the packet (including PRESET) so a preset load never clobbers an explicit
// override in the same command.
var deferredOverrideTags = map[Tag]bool{
	LOW_EDGE:           true,
	HIGH_EDGE:          true,
	NONCOHERENT_BIN_BW: true,
	BIN_COUNT:          true,
}
