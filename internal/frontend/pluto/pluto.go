// Package pluto drives an ADALM-Pluto (AD9361) radio over the IIOD network
// protocol as a frontend.Device. It is the out-of-scope "frontend hardware
// driver" the channelizer core has no business knowing about; it exists
// here only as a concrete, swappable collaborator behind the stable
// interface.
//
// Grounded on internal/sdr/pluto*.go (device discovery,
// attribute programming, RX buffer streaming) adapted onto a
// context-aware iiod.Client (internal/iiod/connect.go), and on
// internal/sdr/ssh_sysfs.go (sysfs fallback, see sysfs.go in this
// package). The original dual-channel monopulse RX/TX pair is condensed
// to a single wideband RX stream: the channelizer core has no use for a
// second receive channel, only for one spectrum to carve channels out of.
// Setup additionally parses the IIOD context XML (internal/sdrxml) to
// learn the RX device's real ADC storage bit depth rather than assuming
// the AD9361's nominal 12 bits.
package pluto

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/godemod/internal/frontend"
	"github.com/rjboer/godemod/internal/iiod"
	"github.com/rjboer/godemod/internal/logging"
	"github.com/rjboer/godemod/internal/ring"
	"github.com/rjboer/godemod/internal/sdrxml"
)

const defaultURI = "192.168.2.1:30431"
const rxChannelIndex = 0
const rxChannelCount = 1

var _ frontend.Device = (*Device)(nil)

// Device drives a single AD9361 receive chain over IIOD.
type Device struct {
	mu     sync.Mutex
	log    logging.Logger
	client *iiod.Client
	sysfs  *SysfsWriter

	uri        string
	phyDev     string
	rxDev      string
	numSamples int
	bufID      int

	desc frontend.Descriptor

	rxUnderruns uint64
	cancel      context.CancelFunc
}

// New constructs an uninitialized Pluto device.
func New(log logging.Logger) *Device {
	if log == nil {
		log = logging.Default()
	}
	return &Device{log: logging.Subsystem(log, "frontend.pluto")}
}

// Setup connects to the IIOD server, discovers the AD9361 devices, and
// programs sample rate, LO, and gain from cfg. Recognized keys: uri,
// sample_rate_hz, rx_lo_hz, rx_gain_db, block_size, ssh_host, ssh_user,
// ssh_password, ssh_key_path, ssh_port, sysfs_root.
func (d *Device) Setup(ctx context.Context, cfg map[string]string) (frontend.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.uri = cfg["uri"]
	if d.uri == "" {
		d.uri = defaultURI
	}
	sampleRate := parseFloat(cfg["sample_rate_hz"], 0)
	if sampleRate <= 0 {
		return frontend.Descriptor{}, fmt.Errorf("pluto: sample_rate_hz must be positive")
	}
	rxLO := parseFloat(cfg["rx_lo_hz"], 0)
	rxGainDB := parseFloat(cfg["rx_gain_db"], 0)
	d.numSamples = int(parseFloat(cfg["block_size"], 4096))
	if d.numSamples <= 0 {
		d.numSamples = 4096
	}

	if host := cfg["ssh_host"]; host != "" {
		writer, err := NewSysfsWriter(SysfsConfig{
			Host: host,
			User: cfg["ssh_user"],
			Password: cfg["ssh_password"],
			KeyPath: cfg["ssh_key_path"],
			Port: int(parseFloat(cfg["ssh_port"], 22)),
			SysfsRoot: cfg["sysfs_root"],
		})
		if err != nil {
			return frontend.Descriptor{}, fmt.Errorf("pluto: sysfs fallback: %w", err)
		}
		d.sysfs = writer
	}

	client, phy, rx, err := d.connect(ctx)
	if err != nil {
		return frontend.Descriptor{}, err
	}
	d.client = client
	d.phyDev = phy
	d.rxDev = rx

	if err := d.program(ctx, sampleRate, rxLO, rxGainDB); err != nil {
		_ = client.Close()
		return frontend.Descriptor{}, err
	}

	bitsPerSample := d.discoverRXBitsPerSample(ctx)

	d.desc = frontend.Descriptor{
		SampleRate: sampleRate,
		Complex: true,
		BitsPerSample: bitsPerSample,
		CalibrationPPM: 0,
		MinIF: -sampleRate / 2,
		MaxIF: sampleRate / 2,
		CenterFreq: rxLO,
		// AD9361's ADC full scale is nominally 2^11 counts for the
		// 12-bit signed samples IIOD returns; the mock frontend has no
		// analog to this and supplies the identity function instead
		// (see DESIGN.md's ScaleADPower2FS open-question decision).
		ScaleADPower2FS: func(rawPower float64) float64 { return rawPower / (2048 * 2048) },
		CanGain: true,
		CanAtten: false,
	}
	return d.desc, nil
}

// discoverRXBitsPerSample reads the IIOD context XML and looks up the RX
// device's scan-element format to learn its true storage bit depth,
// falling back to the AD9361's nominal 12 bits if the context can't be
// fetched or parsed (older IIOD builds, or a device that answers ID/LIST
// but not XML).
func (d *Device) discoverRXBitsPerSample(ctx context.Context) int {
	const fallback = 12

	raw, err := d.client.GetXMLContext(ctx)
	if err != nil {
		d.log.Warn("IIOD XML context unavailable, assuming nominal bit depth", logging.Field{Key: "error", Value: err})
		return fallback
	}
	sdrCtx, err := sdrxml.ParseIIODXML(raw)
	if err != nil {
		d.log.Warn("IIOD XML context malformed, assuming nominal bit depth", logging.Field{Key: "error", Value: err})
		return fallback
	}
	ch, err := sdrCtx.Index.LookupChannel(d.rxDev, "voltage0")
	if err != nil || ch.ParsedFormat == nil {
		return fallback
	}
	return int(ch.ParsedFormat.Bits)
}

func (d *Device) connect(ctx context.Context) (client *iiod.Client, phy, rx string, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d.log.Info("connecting to IIOD", logging.Field{Key: "uri", Value: d.uri})
	client, err = iiod.Dial(dialCtx, d.uri)
	if err != nil {
		return nil, "", "", fmt.Errorf("pluto: connect to IIOD: %w", err)
	}

	devices, err := client.ListDevices(ctx)
	if err != nil {
		_ = client.Close()
		return nil, "", "", fmt.Errorf("pluto: list devices: %w", err)
	}
	phy, rx = identifyAD9361Devices(devices)
	if phy == "" || rx == "" {
		_ = client.Close()
		return nil, "", "", fmt.Errorf("pluto: AD9361 devices not found (phy=%q rx=%q)", phy, rx)
	}
	return client, phy, rx, nil
}

func (d *Device) program(ctx context.Context, sampleRate, rxLO, rxGainDB float64) error {
	set := func(dev, ch, attr, value string) error {
		if err := d.client.WriteAttr(ctx, dev, ch, attr, value); err != nil {
			if d.sysfs != nil {
				return d.sysfs.WriteAttribute(ctx, dev, ch, attr, value)
			}
			return err
		}
		return nil
	}

	if err := set(d.phyDev, "", "sampling_frequency", fmt.Sprintf("%.0f", sampleRate)); err != nil {
		return fmt.Errorf("pluto: set sample rate: %w", err)
	}
	if rxLO > 0 {
		if err := set(d.phyDev, "altvoltage1", "frequency", fmt.Sprintf("%.0f", rxLO)); err != nil {
			return fmt.Errorf("pluto: set RX LO: %w", err)
		}
	}
	if err := set(d.phyDev, "voltage0", "gain_control_mode", "manual"); err != nil {
		return fmt.Errorf("pluto: set gain mode: %w", err)
	}
	if err := set(d.phyDev, "voltage0", "hardwaregain", fmt.Sprintf("%.1f", rxGainDB)); err != nil {
		return fmt.Errorf("pluto: set rx gain: %w", err)
	}
	return nil
}

// Start opens the RX buffer and streams deinterleaved I/Q blocks into dst
// until ctx is cancelled, reconnecting with exponential backoff (the
// teacher's cenkalti/backoff dependency, previously unwired) if the IIOD
// connection drops mid-stream.
func (d *Device) Start(ctx context.Context, dst *ring.Buffer) error {
	d.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	bufID, err := d.client.OpenBuffer(ctx, d.rxDev, d.numSamples, false)
	if err != nil {
		return fmt.Errorf("pluto: open RX buffer: %w", err)
	}
	d.bufID = bufID

	go d.streamLoop(runCtx, dst)
	return nil
}

func (d *Device) streamLoop(ctx context.Context, dst *ring.Buffer) {
	defer dst.Close()
	raw := make([]byte, d.numSamples*rxChannelCount*4)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := d.readBlock(ctx, raw)
		if err != nil {
			d.rxUnderruns++
			d.log.Warn("RX read failed, reconnecting", logging.Field{Key: "error", Value: err})
			if reconnectErr := d.reconnect(ctx); reconnectErr != nil {
				d.log.Error("pluto reconnect failed, giving up", logging.Field{Key: "error", Value: reconnectErr})
				return
			}
			continue
		}
		dst.Write(block)
	}
}

func (d *Device) readBlock(ctx context.Context, raw []byte) ([]complex64, error) {
	n, err := d.client.ReadBuffer(ctx, d.bufID, raw)
	if err != nil {
		return nil, err
	}
	samples, err := iiod.ParseInt16Samples(raw[:n])
	if err != nil {
		return nil, err
	}
	i, q, err := iiod.DeinterleaveIQ(samples, rxChannelCount, rxChannelIndex)
	if err != nil {
		return nil, err
	}
	block := make([]complex64, len(i))
	const scale = float32(1.0 / 32768.0)
	for idx := range i {
		block[idx] = complex(float32(i[idx])*scale, float32(q[idx])*scale)
	}
	return block, nil
}

// reconnect rebuilds the IIOD connection and RX buffer, retrying with
// exponential backoff bounded by ctx.
func (d *Device) reconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		if d.client != nil {
			_ = d.client.Close()
		}
		client, phy, rx, err := d.connect(ctx)
		if err != nil {
			return err
		}
		d.client, d.phyDev, d.rxDev = client, phy, rx
		bufID, err := client.OpenBuffer(ctx, rx, d.numSamples, false)
		if err != nil {
			return err
		}
		d.bufID = bufID
		return nil
	}, bo)
}

// Tune retunes the RX LO and returns the achieved frequency read back from
// the device, which is the calibrated "actual" value.
func (d *Device) Tune(freqHz float64) (float64, error) {
	d.mu.Lock()
	client, phy := d.client, d.phyDev
	d.mu.Unlock()
	if client == nil {
		return 0, fmt.Errorf("pluto: not connected")
	}
	ctx := context.Background()
	if err := client.WriteAttr(ctx, phy, "altvoltage1", "frequency", fmt.Sprintf("%.0f", freqHz)); err != nil {
		return 0, fmt.Errorf("pluto: set RX LO: %w", err)
	}
	actual, err := client.ReadAttr(ctx, phy, "altvoltage1", "frequency")
	if err != nil {
		return freqHz, nil
	}
	if v, perr := strconv.ParseFloat(strings.TrimSpace(actual), 64); perr == nil {
		return v, nil
	}
	return freqHz, nil
}

// Gain sets the manual RX hardware gain in dB.
func (d *Device) Gain(db float64) error {
	d.mu.Lock()
	client, phy := d.client, d.phyDev
	d.mu.Unlock()
	if client == nil {
		return fmt.Errorf("pluto: not connected")
	}
	return client.WriteAttr(context.Background(), phy, "voltage0", "hardwaregain", fmt.Sprintf("%.1f", db))
}

// Atten is unsupported: the AD9361 RX path exposes gain, not attenuation.
func (d *Device) Atten(_ float64) error {
	return fmt.Errorf("pluto: attenuation control not supported, use Gain")
}

// Close releases the RX buffer and IIOD connection.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	var firstErr error
	if d.client != nil {
		if d.bufID != 0 {
			if err := d.client.CloseBuffer(context.Background(), d.bufID); err != nil {
				firstErr = err
			}
		}
		if err := d.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.client = nil
	}
	return firstErr
}

func identifyAD9361Devices(devices []string) (phy, rx string) {
	for _, dev := range devices {
		lower := strings.ToLower(dev)
		switch {
		case strings.Contains(lower, "ad9361-phy"):
			phy = dev
		case strings.Contains(lower, "cf-ad9361-lpc"):
			rx = dev
		}
	}
	return phy, rx
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

