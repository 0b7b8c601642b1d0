// Package mock provides a synthetic frontend.Device that synthesizes a
// wideband complex baseband stream (a tone plus noise) without any
// hardware, for development and the core's own tests.
//
// Grounded on internal/sdr.MockSDR: same
// noise-plus-cosine/sine-tone synthesis via math/rand.NormFloat64,
// generalized from a two-channel monopulse pair (with a controllable
// inter-channel phase delta) to a single wideband stream feeding the
// input ring, since the channelizer core has no notion of "channel 0
// versus channel 1" — only of bins carved out of one spectrum.
package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rjboer/godemod/internal/frontend"
	"github.com/rjboer/godemod/internal/logging"
	"github.com/rjboer/godemod/internal/ring"
)

var _ frontend.Device = (*Device)(nil)

// Device is a synthetic frontend. It is safe for concurrent use from the
// control plane (Tune/Gain/Atten) while Start's producer goroutine runs.
type Device struct {
	mu   sync.RWMutex
	log  logging.Logger
	desc frontend.Descriptor

	toneOffsetHz float64
	noiseSigma   float64
	blockSize    int
	blockPeriod  time.Duration

	gainDB float64
	cancel context.CancelFunc
}

// New constructs an uninitialized mock device. Call Setup before Start.
func New(log logging.Logger) *Device {
	if log == nil {
		log = logging.Default()
	}
	return &Device{log: logging.Subsystem(log, "frontend.mock")}
}

// Setup reads sample_rate_hz, tone_offset_hz, noise_sigma, block_size and
// center_freq_hz from cfg, defaulting the way MockSDR.RX
// defaults an unconfigured Config (1024 samples at 2 Msps).
func (d *Device) Setup(_ context.Context, cfg map[string]string) (frontend.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sampleRate := parseFloatDefault(cfg["sample_rate_hz"], 2_000_000)
	if sampleRate <= 0 {
		return frontend.Descriptor{}, fmt.Errorf("mock: sample_rate_hz must be positive")
	}
	d.toneOffsetHz = parseFloatDefault(cfg["tone_offset_hz"], 25_000)
	d.noiseSigma = parseFloatDefault(cfg["noise_sigma"], 1e-4)
	d.blockSize = int(parseFloatDefault(cfg["block_size"], 1024))
	if d.blockSize <= 0 {
		d.blockSize = 1024
	}
	center := parseFloatDefault(cfg["center_freq_hz"], 100_000_000)
	d.blockPeriod = time.Duration(float64(d.blockSize) / sampleRate * float64(time.Second))

	d.desc = frontend.Descriptor{
		SampleRate: sampleRate,
		Complex: true,
		BitsPerSample: 16,
		CalibrationPPM: 0,
		MinIF: -sampleRate / 2,
		MaxIF: sampleRate / 2,
		CenterFreq: center,
		ScaleADPower2FS: func(rawPower float64) float64 { return rawPower },
		CanGain: true,
		CanAtten: false,
	}
	d.log.Info("mock frontend configured", logging.Field{Key: "sample_rate_hz", Value: sampleRate}, logging.Field{Key: "tone_offset_hz", Value: d.toneOffsetHz})
	return d.desc, nil
}

// Start launches a goroutine that writes synthetic blocks into dst every
// blockPeriod, the push-model contract requires of a frontend.
func (d *Device) Start(ctx context.Context, dst *ring.Buffer) error {
	d.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	toneOffset := d.toneOffsetHz
	sigma := d.noiseSigma
	n := d.blockSize
	sampleRate := d.desc.SampleRate
	period := d.blockPeriod
	d.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		phase := 0.0
		phaseStep := 2 * math.Pi * toneOffset / sampleRate
		for {
			select {
			case <-runCtx.Done():
				dst.Close()
				return
			case <-ticker.C:
				block := make([]complex64, n)
				for i := 0; i < n; i++ {
					phase += phaseStep
					noiseI := rand.NormFloat64() * sigma
					noiseQ := rand.NormFloat64() * sigma
					block[i] = complex64(complex(math.Cos(phase)+noiseI, math.Sin(phase)+noiseQ))
				}
				dst.Write(block)
			}
		}
	}()
	return nil
}

// Tune updates the reported center frequency; the mock has no real LO to
// move so the "actual" frequency is always exactly the request.
func (d *Device) Tune(freqHz float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.desc.CenterFreq = freqHz
	return freqHz, nil
}

// Gain records a synthetic front-end gain in dB; it has no effect on the
// generated samples beyond bookkeeping visible via Descriptor callers.
func (d *Device) Gain(db float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gainDB = db
	return nil
}

// Atten is unsupported on the mock frontend.
func (d *Device) Atten(_ float64) error {
	return fmt.Errorf("mock: attenuation control not supported")
}

// Close stops the producer goroutine started by Start, if any.
func (d *Device) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
