package sdrxml

import "testing"

const testContextXML = `<?xml version="1.0" encoding="utf-8"?>
<context name="local" version-major="0" version-minor="25" version-git="abc123" description="pluto">
  <context-attribute name="hw_model" value="Analog Devices PlutoSDR Rev.B (Z7010-AD9363)"/>
  <device id="iio:device0" name="ad9361-phy">
    <channel id="altvoltage1" name="TX_LO" type="output">
      <attribute name="frequency" filename="out_altvoltage1_TX_LO_frequency"/>
      <attribute name="external" filename="out_altvoltage1_TX_LO_external"/>
    </channel>
    <channel id="voltage0" name="voltage0" type="input">
      <attribute name="hardwaregain" filename="in_voltage0_hardwaregain"/>
    </channel>
  </device>
  <device id="iio:device1" name="cf-ad9361-lpc">
    <channel id="voltage0" name="voltage0" type="input">
      <scan-element index="0" format="le:S12/16&gt;&gt;0"/>
    </channel>
    <channel id="voltage1" name="voltage1" type="input">
      <scan-element index="1" format="le:S12/16&gt;&gt;0"/>
    </channel>
  </device>
</context>`

func TestParseBuildsIndexAndScanFormats(t *testing.T) {
	var ctx SDRContext
	if err := ctx.Parse([]byte(testContextXML)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Name != "local" || ctx.VersionMajor != "0" || ctx.VersionMinor != "25" {
		t.Fatalf("unexpected context attributes: %+v", ctx)
	}
	if len(ctx.Device) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(ctx.Device))
	}
	if ctx.Index == nil || ctx.Index.NoDevices != 2 {
		t.Fatalf("expected an index reporting 2 devices, got %+v", ctx.Index)
	}

	devByName, err := ctx.Index.LookupDevice("ad9361-phy")
	if err != nil {
		t.Fatalf("LookupDevice by name: %v", err)
	}
	devByID, err := ctx.Index.LookupDevice("iio:device0")
	if err != nil {
		t.Fatalf("LookupDevice by id: %v", err)
	}
	if devByName != devByID {
		t.Fatalf("expected name and id lookups to resolve to the same device entry")
	}

	ch, err := ctx.Index.LookupChannel("ad9361-phy", "TX_LO")
	if err != nil {
		t.Fatalf("LookupChannel: %v", err)
	}
	if len(ch.Attribute) != 2 {
		t.Fatalf("unexpected channel attributes: %+v", ch)
	}

	filename, err := ctx.Index.LookupAttributeFile("ad9361-phy", "TX_LO", "external")
	if err != nil {
		t.Fatalf("LookupAttributeFile: %v", err)
	}
	if filename != "out_altvoltage1_TX_LO_external" {
		t.Fatalf("unexpected attribute filename: %s", filename)
	}

	rxCh, err := ctx.Index.LookupChannel("cf-ad9361-lpc", "voltage0")
	if err != nil {
		t.Fatalf("LookupChannel rx: %v", err)
	}
	if rxCh.ParsedFormat == nil || rxCh.ParsedFormat.Bits != 12 || rxCh.ParsedFormat.Length != 16 || rxCh.ParsedFormat.IsSigned != true {
		t.Fatalf("expected a parsed 12-in-16 signed scan format, got %+v", rxCh.ParsedFormat)
	}
	if !rxCh.Enabled {
		t.Fatalf("expected a channel with a scan-element to be marked enabled")
	}
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	var ctx SDRContext
	if err := ctx.Parse(nil); err == nil {
		t.Fatalf("expected an error parsing an empty document")
	}
}

func TestParseScanFormatDecodesLibiioABIStrings(t *testing.T) {
	pf, err := ParseScanFormat("le:S12/16>>0")
	if err != nil {
		t.Fatalf("ParseScanFormat: %v", err)
	}
	if pf.IsBE || !pf.IsSigned || pf.Bits != 12 || pf.Length != 16 || pf.Shift != 0 || pf.Repeat != 1 {
		t.Fatalf("unexpected parsed format: %+v", pf)
	}

	pf2, err := ParseScanFormat("be:u16/16>>0X2")
	if err != nil {
		t.Fatalf("ParseScanFormat: %v", err)
	}
	if !pf2.IsBE || pf2.IsSigned || pf2.Repeat != 2 {
		t.Fatalf("unexpected parsed repeated format: %+v", pf2)
	}
}

func TestParseScanFormatRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "S12/16>>0", "le:S12>>0", "le:X12/16>>0", "le:S12/16"}
	for _, s := range cases {
		if _, err := ParseScanFormat(s); err == nil {
			t.Errorf("ParseScanFormat(%q): expected an error", s)
		}
	}
}
