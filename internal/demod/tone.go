package demod

import "math"

// ToneDetector is the CTCSS/PL sub-audible tone PLL: it
// locks to a configurable tone frequency and compares detected deviation
// against a threshold. Setting ToneHz to zero disables it. Implemented as
// a real-signal quadrature lock detector (mix down by the tone frequency,
// low-pass, measure residual magnitude) rather than reusing the complex
// PLL directly, since its input is the real discriminator output, not a
// complex baseband sample.
type ToneDetector struct {
	ToneHz     float64
	SampleRate float64
	Threshold  float64

	phase float64
	iLP   float64
	qLP   float64
}

// NewToneDetector builds a tone detector for toneHz at sampleRate,
// declaring lock when the demodulated tone magnitude reaches threshold.
func NewToneDetector(toneHz, sampleRate, threshold float64) *ToneDetector {
	return &ToneDetector{ToneHz: toneHz, SampleRate: sampleRate, Threshold: threshold}
}

// Enabled reports whether tone detection is active (ToneHz != 0).
func (t *ToneDetector) Enabled() bool { return t.ToneHz != 0 }

// Step processes one discriminator-output sample and returns the current
// detected tone magnitude and whether it has reached the lock threshold.
func (t *ToneDetector) Step(x float64) (deviation float64, locked bool) {
	if !t.Enabled() || t.SampleRate <= 0 {
		return 0, false
	}
	step := 2 * math.Pi * t.ToneHz / t.SampleRate
	i := x * math.Cos(t.phase)
	q := -x * math.Sin(t.phase)

	const alpha = 0.02
	t.iLP = (1-alpha)*t.iLP + alpha*i
	t.qLP = (1-alpha)*t.qLP + alpha*q

	t.phase += step
	if t.phase > 2*math.Pi {
		t.phase -= 2 * math.Pi
	}

	deviation = math.Hypot(t.iLP, t.qLP)
	return deviation, deviation >= t.Threshold
}
