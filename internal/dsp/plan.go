package dsp

import "gonum.org/v1/gonum/dsp/fourier"

// Plan is a reusable forward/inverse complex FFT of a fixed size, the
// primitive the master overlap-save stage and the channelizer's per-channel
// IFFT both need underneath the analysis-oriented CachedDSP above — those
// two consumers transform raw spectra, not power estimates, so they call
// through gonum's fourier.CmplxFFT directly instead of through FFTAndDBFS.
type Plan struct {
	n   int
	fft *fourier.CmplxFFT
}

// NewPlan builds a complex FFT/IFFT plan for blocks of length n.
func NewPlan(n int) *Plan {
	return &Plan{n: n, fft: fourier.NewCmplxFFT(n)}
}

// Size returns the block length the plan was built for.
func (p *Plan) Size() int { return p.n }

// Forward computes the unnormalized forward FFT of in, which must have
// length equal to the plan's size. dst is reused if it has the right
// length and capacity, matching gonum's Coefficients/Sequence convention.
func (p *Plan) Forward(dst, in []complex128) []complex128 {
	return p.fft.Coefficients(dst, in)
}

// Inverse computes the inverse FFT of in, normalized by 1/n so that
// Inverse(Forward(x)) reproduces x, unlike gonum's raw Sequence which
// leaves the caller to divide by n.
func (p *Plan) Inverse(dst, in []complex128) []complex128 {
	out := p.fft.Sequence(dst, in)
	scale := complex(1/float64(p.n), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}
