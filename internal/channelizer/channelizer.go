package channelizer

import (
	"math"
	"math/cmplx"

	"github.com/rjboer/godemod/internal/dsp"
)

// Channelizer carves one channel's baseband stream out of the master FFT
// block: bin extraction with the edge-case rules of, Kaiser
// passband multiply, inverse FFT, overlap discard, and the fine (sub-bin)
// mixer with Doppler compensation.
type Channelizer struct {
	complexInput bool
	nfft         int
	width        int
	outputBlock  int
	beta         float64

	plan     *dsp.Plan
	passband Passband

	oscPhase float64
	oscN     uint64
	oscInit  bool
}

// New builds a channelizer stage for a channel occupying width master bins
// and emitting outputBlock time-domain samples per block (the remainder of
// each width-length IFFT is the overlap-save history to discard).
// complexInput/nfft describe the shape of the master blocks this
// channelizer will be fed.
func New(complexInput bool, nfft, width, outputBlock int, beta float64) *Channelizer {
	if width <= 0 {
		width = 1
	}
	if outputBlock <= 0 || outputBlock > width {
		outputBlock = width
	}
	return &Channelizer{
		complexInput: complexInput,
		nfft: nfft,
		width: width,
		outputBlock: outputBlock,
		beta: beta,
		plan: dsp.NewPlan(width),
		passband: BuildPassband(width, beta),
	}
}

// Rebuild reconstructs the passband response and IFFT plan after a
// filter-affecting parameter change (output_samprate, min/max IF, Kaiser
// beta, blocking factor), per restart conditions. It also
// forces the fine mixer's oscillator to re-initialize, matching the effect
// of setting remainder = NaN.
func (c *Channelizer) Rebuild(width, outputBlock int, beta float64) {
	if width <= 0 {
		width = 1
	}
	if outputBlock <= 0 || outputBlock > width {
		outputBlock = width
	}
	c.width = width
	c.outputBlock = outputBlock
	c.beta = beta
	c.plan = dsp.NewPlan(width)
	c.passband = BuildPassband(width, beta)
	c.oscInit = false
}

// Extract selects the channel's passband bins out of a master block and
// applies the Kaiser window, implementing edge cases:
// - complex frontends spectrally wrap negative bin indices;
// - real frontends zero-pad negative/out-of-range bins, unless the
// requested range covers the full DC-Nyquist span, in which case a
// straight linear mapping over [0, N_bins) is used instead;
// - any bin outside the frontend's coverage (i.e. genuinely unavailable)
// is zero.
func (c *Channelizer) Extract(master []complex128, binShift int) []complex128 {
	out := make([]complex128, c.width)
	half := c.width / 2
	start := binShift - half
	end := start + c.width - 1
	nBins := len(master)

	if !c.complexInput && start <= 0 && end >= nBins-1 {
		for k := 0; k < c.width && k < nBins; k++ {
			out[k] = master[k]
		}
		applyPassband(out, c.passband.Weights)
		return out
	}

	for k := 0; k < c.width; k++ {
		idx := start + k
		var v complex128
		switch {
		case c.complexInput:
			wrapped := idx
			if wrapped < 0 {
				wrapped += c.nfft
			}
			if wrapped >= 0 && wrapped < nBins {
				v = master[wrapped]
			}
		default:
			if idx >= 0 && idx < nBins {
				v = master[idx]
			}
		}
		out[k] = v
	}
	applyPassband(out, c.passband.Weights)
	return out
}

func applyPassband(spectrum []complex128, weights []float64) {
	for i := range spectrum {
		if i < len(weights) {
			spectrum[i] *= complex(weights[i], 0)
		}
	}
}

// Process runs one block through the channelizer: extraction, IFFT,
// overlap discard, and the fine mixer. remainder is the sub-bin residual
// frequency (Hz) left after binShift snapped to an integer bin; NaN forces
// oscillator re-initialization.
func (c *Channelizer) Process(master []complex128, binShift int, remainder, sampleRate, doppler, dopplerRate float64) []complex128 {
	spectrum := c.Extract(master, binShift)
	timeDomain := c.plan.Inverse(nil, spectrum)

	start := len(timeDomain) - c.outputBlock
	if start < 0 {
		start = 0
	}
	out := make([]complex128, len(timeDomain)-start)
	copy(out, timeDomain[start:])

	c.mix(out, remainder, sampleRate, doppler, dopplerRate)
	return out
}

// mix applies the fine (sub-bin) oscillator and Doppler compensation to an
// already-IFFT'd block: multiply by
// exp(j*(-2*pi*remainder*n/samprate + Doppler term)), where the Doppler
// term accumulates doppler + doppler_rate*n per sample. A NaN remainder
// restarts the oscillator and is treated as a zero offset for that block.
func (c *Channelizer) mix(samples []complex128, remainder, sampleRate, doppler, dopplerRate float64) {
	if math.IsNaN(remainder) {
		c.oscInit = false
		remainder = 0
	}
	if !c.oscInit {
		c.oscPhase = 0
		c.oscN = 0
		c.oscInit = true
	}
	if sampleRate <= 0 {
		return
	}
	for i := range samples {
		n := float64(c.oscN)
		freqOffset := doppler + dopplerRate*n
		step := 2 * math.Pi * (freqOffset - remainder) / sampleRate
		c.oscPhase += step
		samples[i] *= cmplx.Exp(complex(0, c.oscPhase))
		c.oscN++
	}
}
