// Package frontend defines the stable boundary between the demodulation
// core and whatever produces baseband samples. The core never
// imports a concrete backend; it is handed a Device and a Descriptor at
// startup and never assumes anything about the hardware behind them.
//
// Grounded on an SDR abstraction (internal/sdr.SDR:
// Init/RX/TX/Close/SetPhaseDelta), generalized from a two-channel
// monopulse receiver pumped by explicit RX() calls to a single wideband
// producer that pushes samples into an internal/ring.Buffer on its own
// goroutine, matching push-model contract ("writes samples
// and advances the input write pointer").
package frontend

import (
	"context"

	"github.com/rjboer/godemod/internal/ring"
)

// Descriptor is the frontend descriptor: immutable after
// Setup, shared read-only with every channel.
type Descriptor struct {
	SampleRate     float64
	Complex        bool    // true: complex I/Q; false: real-only
	BitsPerSample  int
	CalibrationPPM float64
	MinIF          float64
	MaxIF          float64
	CenterFreq     float64

	// ScaleADPower2FS converts a raw ADC power reading into a fraction of
	// full scale. leaves the exact convention open; the core
	// never guesses it, it only ever calls this function. See
	// DESIGN.md's Open Question decision for why this is a function
	// value rather than a fixed scalar: the AD9361 and a synthetic mock
	// source have entirely different ADC transfer curves.
	ScaleADPower2FS func(rawPower float64) float64

	// CanGain/CanAtten report whether Device.Gain/Device.Atten do
	// anything on this backend, per "Optional: gain(db),
	// atten(db)".
	CanGain  bool
	CanAtten bool
}

// Device is the frontend interface the core consumes:
// setup/start/tune plus optional gain/atten. Setup and Start are separate
// calls so the core can validate the descriptor before committing to
// streaming, mirroring Init-then-RX-loop split.
type Device interface {
	// Setup initializes the backend from an already-parsed config
	// section and returns the descriptor the core will treat as
	// immutable for the rest of the process's life.
	Setup(ctx context.Context, cfg map[string]string) (Descriptor, error)

	// Start begins producing samples into dst on its own goroutine. It
	// returns once the producer goroutine has been launched; ctx
	// cancellation stops production and closes dst.
	Start(ctx context.Context, dst *ring.Buffer) error

	// Tune moves the LO towards freqHz and returns the true frequency
	// actually achieved after calibration. If the LO is
	// hardware-locked (e.g. a fixed-tune dongle), Tune is a no-op that
	// returns the current center frequency.
	Tune(freqHz float64) (actualFreqHz float64, err error)

	// Gain and Atten are optional; backends that don't
	// support them return an error rather than silently ignoring the
	// request, so the control plane can report the failure upstream.
	Gain(db float64) error
	Atten(db float64) error

	// Close stops production and releases any underlying resources.
	Close() error
}
