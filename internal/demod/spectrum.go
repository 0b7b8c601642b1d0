package demod

import "math/cmplx"

// Spectrum implements the non-coherent spectrum analyzer demodulator: it
// produces a vector of bin_count averaged power values covering
// bin_count*bin_bw Hz around the channel's target frequency.
type Spectrum struct {
	BinCount int
	BinBW    float64

	binData  []float64
	avgAlpha float64
}

// NewSpectrum builds a spectrum demodulator with the given output bin
// count and bin bandwidth. avgAlpha controls the non-coherent averaging
// (0 disables averaging: each block replaces the buffer outright).
func NewSpectrum(binCount int, binBW, avgAlpha float64) *Spectrum {
	return &Spectrum{
		BinCount: binCount,
		BinBW: binBW,
		binData: make([]float64, binCount),
		avgAlpha: avgAlpha,
	}
}

// Reallocate resizes the bin buffer when bin_count or bin_bw changes.
// this must happen at a point the status emitter is not
// concurrently reading the buffer; callers own that synchronization (the
// channel mutex in internal/channel.Channel).
func (s *Spectrum) Reallocate(binCount int, binBW float64) {
	s.BinCount = binCount
	s.BinBW = binBW
	s.binData = make([]float64, binCount)
}

// ProcessComplex accumulates power from a complex-frontend (or
// partial-bandwidth real) master block slice already extracted around
// bin_shift and ordered ascending from most-negative to most-positive
// frequency, the same convention channelizer.Extract uses. The mapping is
// the identity: inputBins[0] (most negative) lands in fresh[0], and
// inputBins[n-1] (most positive) lands in fresh[n-1].
func (s *Spectrum) ProcessComplex(inputBins []complex128) []float64 {
	n := len(inputBins)
	fresh := make([]float64, s.BinCount)
	for k := 0; k < n && k < s.BinCount; k++ {
		fresh[k] = cmplx.Abs(inputBins[k]) * cmplx.Abs(inputBins[k])
	}
	s.accumulate(fresh)
	return s.binData
}

// ProcessRealFullCoverage accumulates power for the real-frontend
// DC-Nyquist-covering case: a straight linear map from [0, N_bins) to
// [0, bin_count), averaging contiguous input bins per output bin.
func (s *Spectrum) ProcessRealFullCoverage(masterBins []complex128) []float64 {
	fresh := make([]float64, s.BinCount)
	if s.BinCount == 0 {
		return fresh
	}
	n := len(masterBins)
	perBin := float64(n) / float64(s.BinCount)
	for out := 0; out < s.BinCount; out++ {
		start := int(float64(out) * perBin)
		end := int(float64(out+1) * perBin)
		if end <= start {
			end = start + 1
		}
		if end > n {
			end = n
		}
		var sum float64
		count := 0
		for i := start; i < end; i++ {
			mag := cmplx.Abs(masterBins[i])
			sum += mag * mag
			count++
		}
		if count > 0 {
			fresh[out] = sum / float64(count)
		}
	}
	s.accumulate(fresh)
	return s.binData
}

func (s *Spectrum) accumulate(fresh []float64) {
	if s.avgAlpha <= 0 {
		copy(s.binData, fresh)
		return
	}
	for i := range s.binData {
		s.binData[i] = (1-s.avgAlpha)*s.binData[i] + s.avgAlpha*fresh[i]
	}
}

// BinData returns the current averaged power vector.
func (s *Spectrum) BinData() []float64 { return s.binData }

// InputBinCount computes input_bins = bin_count * bin_bw * N_fft /
// frontend_samprate.
func InputBinCount(binCount int, binBW float64, nfft int, frontendSampleRate float64) int {
	if frontendSampleRate <= 0 {
		return 0
	}
	v := float64(binCount) * binBW * float64(nfft) / frontendSampleRate
	return int(v + 0.5)
}
