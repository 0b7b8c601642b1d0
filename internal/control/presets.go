package control

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/rjboer/godemod/internal/channel"
)

// Presets is the read-only preset table of ("An external
// key/value dictionary indexed by preset name; loading a preset applies a
// subset of command tags. Presets are read-only at runtime."). Loaded once
// at startup from an XML manifest, the way internal/xml
// parses a device-context document into an in-memory index
// (xml.Unmarshal + a name-keyed lookup map built once, never mutated).
type Presets struct {
	byName map[string]presetEntry
}

type presetEntry struct {
	Name   string
	Fields map[string]string
}

// manifest mirrors the on-disk XML shape:
//
//	<presets>
//	 <preset name="am">
//	 <field tag="demod_type" value="linear"/>
//	 <field tag="envelope" value="true"/>
//	 </preset>
//	</presets>
type manifest struct {
	XMLName xml.Name `xml:"presets"`
	Presets []manifestEntry `xml:"preset"`
}

type manifestEntry struct {
	Name   string `xml:"name,attr"`
	Fields []manifestField `xml:"field"`
}

type manifestField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:"value,attr"`
}

// LoadPresets parses a preset manifest, the immutable context 
// hands to the control plane once at startup.
func LoadPresets(raw []byte) (*Presets, error) {
	var m manifest
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("control: parse preset manifest: %w", err)
	}
	byName := make(map[string]presetEntry, len(m.Presets))
	for _, p := range m.Presets {
		fields := make(map[string]string, len(p.Fields))
		for _, f := range p.Fields {
			fields[f.Tag] = f.Value
		}
		byName[p.Name] = presetEntry{Name: p.Name, Fields: fields}
	}
	return &Presets{byName: byName}, nil
}

// Has reports whether a preset by that name exists.
func (p *Presets) Has(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.byName[name]
	return ok
}

// Apply loads a preset's fields onto a channel's Demod/Filter/Output state.
// Unknown field names are ignored (forward compatibility with manifests
// carrying fields this build doesn't understand yet).
func (p *Presets) Apply(ch *channel.Channel, name string) error {
	if p == nil {
		return fmt.Errorf("control: no preset table loaded")
	}
	entry, ok := p.byName[name]
	if !ok {
		return fmt.Errorf("control: unknown preset %q", name)
	}
	for tag, value := range entry.Fields {
		applyPresetField(ch, tag, value)
	}
	ch.SetPreset(name)
	return nil
}

func applyPresetField(ch *channel.Channel, tag, value string) {
	switch tag {
	case "demod_type":
		ch.Demod.Type = parseDemodType(value)
	case "envelope":
		ch.Demod.Envelope = parseBool(value)
	case "pll_enable":
		ch.Demod.PLLEnable = parseBool(value)
	case "pll_bw":
		ch.Demod.PLLBW = parseFloat(value)
	case "pll_square":
		ch.Demod.PLLSquare = parseBool(value)
	case "independent_sideband":
		ch.Demod.IndependentSideband = parseBool(value)
	case "thresh_extend":
		ch.Demod.ThreshExtend = parseBool(value)
	case "stereo":
		ch.Demod.Stereo = parseBool(value)
	case "deemphasis_tau":
		ch.Demod.DeemphasisTau = parseFloat(value)
	case "ctcss_tone_hz":
		ch.Demod.CTCSSToneHz = parseFloat(value)
	case "agc_enable":
		ch.Demod.AGCEnable = parseBool(value)
	case "agc_threshold_db":
		ch.Demod.AGCThresholdDB = parseFloat(value)
	case "agc_recovery_rate":
		ch.Demod.AGCRecoveryRate = parseFloat(value)
	case "kaiser_beta":
		ch.Filter.KaiserBeta = parseFloat(value)
	case "min_if":
		ch.Filter.MinIF = parseFloat(value)
	case "max_if":
		ch.Filter.MaxIF = parseFloat(value)
	case "filter2_kaiser_beta":
		ch.Filter.Filter2KaiserBeta = parseFloat(value)
	case "output_channels":
		if n, err := strconv.Atoi(value); err == nil {
			ch.Output.Channels = n
		}
	case "output_encoding":
		ch.Output.Encoding = value
	case "bin_count":
		if n, err := strconv.Atoi(value); err == nil {
			ch.Demod.BinCount = n
		}
	case "noncoherent_bin_bw":
		ch.Demod.NoncoherentBinBW = parseFloat(value)
	}
}

func parseDemodType(s string) channel.DemodType {
	switch s {
	case "fm":
		return channel.FM
	case "wfm":
		return channel.WFM
	case "spectrum":
		return channel.Spectrum
	default:
		return channel.Linear
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
