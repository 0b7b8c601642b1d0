package dsp

import "math/cmplx"

// PhaseDifference estimates the average phase rotation between two equal
// length complex sequences as arg(sum(conj(a[i]) * b[i])), the same
// accumulated-conjugate-product estimator originally used for angle-of-
// arrival phase comparison, generalized here into a general-purpose
// discriminator primitive: the FM instantaneous-frequency estimator, the
// SSB/CW carrier PLL, and the CTCSS tone detector all reduce to "what phase
// rotation happened between these two views of the same signal".
// Mismatched lengths compare only the overlapping prefix.
func PhaseDifference(a, b []complex128) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var acc complex128
	for i := 0; i < n; i++ {
		acc += cmplx.Conj(a[i]) * b[i]
	}
	if acc == 0 {
		return 0
	}
	return cmplx.Phase(acc)
}

// SampleDiscriminator estimates the instantaneous phase rotation between
// consecutive samples of a single sequence, i.e. PhaseDifference applied
// sample-by-sample rather than block-by-block. This is the core of the FM
// demodulator's discriminator: the phase delta between
// sample i-1 and sample i scaled by the sample rate gives instantaneous
// frequency.
func SampleDiscriminator(samples []complex128) []float64 {
	if len(samples) < 2 {
		return []float64{}
	}
	out := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev == 0 || cur == 0 {
			out[i-1] = 0
			continue
		}
		out[i-1] = cmplx.Phase(cur * cmplx.Conj(prev))
	}
	return out
}
