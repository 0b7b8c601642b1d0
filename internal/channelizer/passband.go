// Package channelizer implements per-channel bin
// extraction from the master FFT block, Kaiser-windowed passband
// filtering, inverse FFT, the fine (sub-bin) mixer, and the optional
// second filter/ISB split.
//
// Grounded on internal/dsp/window.go (window application to
// a spectrum, generalized here from a fixed analysis Hamming window to a
// parametric Kaiser passband) and fft.go's FFTShift/normalization pattern.
package channelizer

import (
	"github.com/rjboer/godemod/internal/dsp"
)

// Passband is the precomputed frequency-domain filter response for a
// channel's [MinIF, MaxIF] window, built once and reused until a filter
// parameter changes ("restart conditions").
type Passband struct {
	Width   int       // W = output_samprate * N_fft / frontend_samprate, rounded
	Weights []float64
}

// BuildPassband returns the Kaiser-windowed rectangular passband response
// for a channel occupying width bins (the channelizer's per-block bin
// range width), shaped by beta.
func BuildPassband(width int, beta float64) Passband {
	return Passband{Width: width, Weights: dsp.Kaiser(width, beta)}
}

// BinWidth computes W = round(outputSampleRate * nfft / frontendSampleRate),
// the number of master bins a channel's passband spans.
func BinWidth(outputSampleRate, frontendSampleRate float64, nfft int) int {
	if frontendSampleRate <= 0 {
		return 0
	}
	w := outputSampleRate * float64(nfft) / frontendSampleRate
	return int(w + 0.5)
}

// BinShift computes the integer bin index of a channel's passband center
// relative to DC in the master block, and the sub-bin remainder removed by
// the fine mixer, per bin-shift policy.
func BinShift(centerFreq, frontendSampleRate float64, nfft int) (shift int, remainder float64) {
	if frontendSampleRate <= 0 || nfft <= 0 {
		return 0, 0
	}
	binBW := frontendSampleRate / float64(nfft)
	exact := centerFreq / binBW
	shift = int(exact)
	if exact < 0 && float64(shift) != exact {
		shift-- // round toward -inf so remainder stays in [0, binBW)
	}
	remainder = centerFreq - float64(shift)*binBW
	return shift, remainder
}
