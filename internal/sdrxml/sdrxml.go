// Package sdrxml decodes the IIOD context XML document a Pluto/AD9361
// front end returns on connect: the device/channel/attribute tree and the
// libiio scan-element format string each enabled channel advertises for its
// raw sample layout.
//
// Grounded on internal/xml (SDRContext/DeviceEntry/ChannelEntry
// schema) and internal/sdrxml (scan-format decode helpers), consolidated
// here into one package: the schema and the decode helpers previously
// lived in two same-named packages with a duplicate IIODIndex type
// between them, which this rewrite resolves into a single coherent one.
package sdrxml

import "encoding/xml"

// SDRContext is the root of an IIOD context document.
type SDRContext struct {
	XMLName          xml.Name           `xml:"context" json:"context"`
	Name             string             `xml:"name,attr" json:"name"`
	VersionMajor     string             `xml:"version-major,attr" json:"version-major"`
	VersionMinor     string             `xml:"version-minor,attr" json:"version-minor"`
	VersionGit       string             `xml:"version-git,attr" json:"version-git"`
	Description      string             `xml:"description,attr" json:"description"`
	ContextAttribute []ContextAttribute `xml:"context-attribute" json:"context-attribute"`
	Device           []DeviceEntry      `xml:"device" json:"device"`

	// Index is populated by Parse; nil on a zero-value SDRContext.
	Index *IIODIndex `xml:"-" json:"index,omitempty"`
}

// IIODIndex gives O(1) lookup into a parsed SDRContext by device/channel
// name or ID, and by attribute filename.
type IIODIndex struct {
	DevicesByID   map[string]*DeviceEntry
	DevicesByName map[string]*DeviceEntry
	Channels      map[string]map[string]*ChannelEntry
	AttrFiles     map[string]map[string]map[string]string
	NoDevices     int
	NoChannels    int
}

type ContextAttribute struct {
	Name  string `xml:"name,attr" json:"name"`
	Value string `xml:"value,attr" json:"value"`
}

type DeviceEntry struct {
	ID    string `xml:"id,attr" json:"id"`
	Name  string `xml:"name,attr" json:"name"`
	Label string `xml:"label,attr" json:"label,omitempty"`

	Channel         []ChannelEntry    `xml:"channel" json:"channel"`
	Attribute       []DevAttribute    `xml:"attribute" json:"attribute"`
	DebugAttribute  []DebugAttribute  `xml:"debug-attribute" json:"debug-attribute"`
	BufferAttribute []BufferAttribute `xml:"buffer-attribute" json:"buffer-attribute"`

	// DecodeMap is built on demand by BuildDecodeMap, from the enabled
	// channels' parsed scan formats.
	DecodeMap DecodeMap `xml:"-" json:"-"`
}

type ChannelEntry struct {
	ID   string `xml:"id,attr" json:"id"`
	Name string `xml:"name,attr" json:"name,omitempty"`
	Type string `xml:"type,attr" json:"type"`

	Attribute      []ChannelAttr `xml:"attribute" json:"attribute"`
	ScanElementRaw *ScanElement  `xml:"scan-element" json:"scan-element,omitempty"`

	// Enabled and ParsedFormat/SampleSize are not part of the wire XML;
	// they're filled in by the caller (typically from a separate
	// "enabled" sysfs read) before BuildDecodeMap runs.
	Enabled      bool        `xml:"-" json:"-"`
	ParsedFormat *ScanFormat `xml:"-" json:"parsed-format,omitempty"`
	SampleSize   uint32      `xml:"-" json:"-"`
}

type DevAttribute struct {
	Name string `xml:"name,attr" json:"name"`
}

type DebugAttribute struct {
	Name string `xml:"name,attr" json:"name"`
}

type BufferAttribute struct {
	Name string `xml:"name,attr" json:"name"`
}

type ChannelAttr struct {
	Name     string `xml:"name,attr" json:"name"`
	Filename string `xml:"filename,attr" json:"filename,omitempty"`
}

// ScanElement is the raw libiio scan-element tag: Format is an ABI string
// like "le:S12/16>>0" that ParseScanFormat decodes into a ScanFormat.
type ScanElement struct {
	Index  string `xml:"index,attr" json:"index"`
	Format string `xml:"format,attr" json:"format"`
	Scale  string `xml:"scale,attr" json:"scale,omitempty"`
}

// ScanFormat is the decoded form of a ScanElement.Format ABI string,
// mirroring libiio's internal struct iio_data_format.
type ScanFormat struct {
	Index     uint32
	IsBE      bool
	IsSigned  bool
	Bits      uint32
	Length    uint32
	Repeat    uint32
	Shift     uint32
	WithScale bool
	Scale     float64
}

// DecodeMap lays out how to slice one interleaved sample frame into its
// per-channel values, built by DeviceEntry.BuildDecodeMap.
type DecodeMap struct {
	Entries    []DecodeEntry
	SampleSize uint32
}

type DecodeEntry struct {
	Channel   *ChannelEntry
	Offset    uint32
	Length    uint32
	TotalSize uint32
}
