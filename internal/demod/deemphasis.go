package demod

import "math"

// Deemphasis is the single-pole IIR de-emphasis filter:
// y[n] = alpha*y[n-1] + (1-alpha)*x[n].
type Deemphasis struct {
	alpha float64
	y     float64
}

// NewDeemphasis derives alpha from a time constant (typically 750us US,
// 50us EU broadcast, or 75us for WFM) and the sample rate.
func NewDeemphasis(timeConstantSec, sampleRate float64) *Deemphasis {
	if timeConstantSec <= 0 || sampleRate <= 0 {
		return &Deemphasis{alpha: 0}
	}
	alpha := math.Exp(-1 / (timeConstantSec * sampleRate))
	return &Deemphasis{alpha: alpha}
}

// Step filters one sample.
func (d *Deemphasis) Step(x float64) float64 {
	d.y = d.alpha*d.y + (1-d.alpha)*x
	return d.y
}
