package channelizer

import "github.com/rjboer/godemod/internal/dsp"

// SecondFilter is the optional narrower overlap-save filter applied at
// channel rate without respawning the channelizer. It
// reuses the same frequency-domain-multiply technique as the main
// channelizer, just sized to the channel's own block instead of the
// master's.
type SecondFilter struct {
	blocking int
	beta     float64
	plan     *dsp.Plan
	passband Passband
	isb      bool
}

// NewSecondFilter builds a second filter with the given blocking factor
// (transform length) and Kaiser beta. isb selects independent-sideband
// mode, which splits the filtered output into left/right stereo channels.
// A blocking factor of zero disables the second filter (returns nil).
func NewSecondFilter(blocking int, beta float64, isb bool) *SecondFilter {
	if blocking <= 0 {
		return nil
	}
	return &SecondFilter{
		blocking: blocking,
		beta: beta,
		plan: dsp.NewPlan(blocking),
		passband: BuildPassband(blocking, beta),
		isb: isb,
	}
}

// Apply filters samples through the second-stage passband. When ISB mode
// is off, the filtered block is returned as left with right == nil (mono/
// single-sideband channel path). In ISB mode the sum and difference of the
// two sideband contributions are split into left/right.2's
// stereo mapping.
func (f *SecondFilter) Apply(samples []complex128) (left, right []complex128) {
	if f == nil || len(samples) == 0 {
		return samples, nil
	}

	n := len(f.passband.Weights)
	padded := make([]complex128, n)
	copy(padded, samples)

	spectrum := f.plan.Forward(nil, padded)
	filtered := dsp.ApplyWindowComplex128(spectrum, f.passband.Weights)
	timeDomain := f.plan.Inverse(nil, filtered)

	out := make([]complex128, len(samples))
	copy(out, timeDomain[:len(samples)])

	if !f.isb {
		return out, nil
	}

	left = make([]complex128, len(out))
	right = make([]complex128, len(out))
	for i, v := range out {
		left[i] = complex(real(v), 0)
		right[i] = complex(imag(v), 0)
	}
	return left, right
}
