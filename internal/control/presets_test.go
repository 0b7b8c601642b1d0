package control

import (
	"testing"
	"time"

	"github.com/rjboer/godemod/internal/channel"
)

const testManifest = `<presets>
  <preset name="am">
    <field tag="demod_type" value="linear"/>
    <field tag="envelope" value="true"/>
  </preset>
  <preset name="nfm">
    <field tag="demod_type" value="fm"/>
    <field tag="deemphasis_tau" value="0.00075"/>
  </preset>
</presets>`

func TestLoadPresetsIndexesByName(t *testing.T) {
	p, err := LoadPresets([]byte(testManifest))
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if !p.Has("am") || !p.Has("nfm") {
		t.Fatalf("expected both presets to be indexed")
	}
	if p.Has("ssb") {
		t.Fatalf("did not expect an unknown preset name to be present")
	}
}

func TestPresetApplySetsFieldsAndName(t *testing.T) {
	p, err := LoadPresets([]byte(testManifest))
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	ch := channel.New(1, 10, time.Now())
	if err := p.Apply(ch, "am"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ch.Demod.Type != channel.Linear {
		t.Fatalf("expected demod type linear, got %v", ch.Demod.Type)
	}
	if !ch.Demod.Envelope {
		t.Fatalf("expected envelope=true")
	}
	if ch.Preset() != "am" {
		t.Fatalf("expected preset name recorded as %q, got %q", "am", ch.Preset())
	}
}

func TestPresetApplyUnknownNameErrors(t *testing.T) {
	p, err := LoadPresets([]byte(testManifest))
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	ch := channel.New(1, 10, time.Now())
	if err := p.Apply(ch, "does-not-exist"); err == nil {
		t.Fatalf("expected an error applying an unknown preset")
	}
}

func TestPresetApplyOnNilTableErrors(t *testing.T) {
	var p *Presets
	ch := channel.New(1, 10, time.Now())
	if err := p.Apply(ch, "am"); err == nil {
		t.Fatalf("expected an error applying against a nil preset table")
	}
	if p.Has("am") {
		t.Fatalf("expected Has to report false on a nil preset table")
	}
}

func TestLoadPresetsRejectsMalformedXML(t *testing.T) {
	if _, err := LoadPresets([]byte("<presets><preset name=\"x\">")); err == nil {
		t.Fatalf("expected an error for malformed XML")
	}
}
