package demod

import (
	"math"
	"math/cmplx"
)

// Linear implements the SSB/CW/AM/IQ demodulator: an
// envelope (AM) sub-mode and a coherent (SSB/CW) sub-mode, sharing AGC and
// an optional carrier-recovery PLL.
type Linear struct {
	Envelope bool // true: AM envelope detection; false: coherent output

	AGC *AGC
	PLL *PLL // nil when PLLEnable is false

	Squelch *Squelch

	dcEstimate float64
}

// NewLinear builds a Linear demodulator. pll may be nil for a
// non-coherent (unlocked carrier) SSB/CW path.
func NewLinear(envelope bool, agc *AGC, pll *PLL, squelch *Squelch) *Linear {
	return &Linear{Envelope: envelope, AGC: agc, PLL: pll, Squelch: squelch}
}

// Process demodulates one block of complex baseband into real PCM. Besides
// the audio and PLL SNR, it returns the PLL's lock indicator and phase
// (zero when PLL is nil) and the AGC's current gain in dB (zero when AGC
// is nil or disabled).
func (l *Linear) Process(samples []complex128) (audio []float64, snr float64, pllLocked bool, pllPhase float64, agcGainDB float64) {
	if len(samples) == 0 {
		return nil, 0, false, 0, 0
	}

	audio = make([]float64, len(samples))
	var peak float64
	const dcAlpha = 0.001

	for i, s := range samples {
		var v float64
		if l.Envelope {
			mag := cmplx.Abs(s)
			l.dcEstimate = (1-dcAlpha)*l.dcEstimate + dcAlpha*mag
			v = mag - l.dcEstimate
		} else {
			out := s
			if l.PLL != nil {
				out = l.PLL.Step(s)
			}
			v = real(out)
		}
		if a := absFloat(v); a > peak {
			peak = a
		}
		audio[i] = v
	}

	gain := 1.0
	if l.AGC != nil {
		gain = l.AGC.Update(peak)
		if gain > 0 {
			agcGainDB = 20 * math.Log10(gain)
		}
	}
	var power float64
	for i := range audio {
		audio[i] *= gain
		power += audio[i] * audio[i]
	}

	if l.PLL != nil {
		snr = l.PLL.SNR()
		pllLocked = l.PLL.Locked()
		pllPhase = l.PLL.Phase()
	}

	metric := power / float64(len(audio))
	state := l.Squelch.Update(metric)
	if state == Closed {
		for i := range audio {
			audio[i] = 0
		}
	}
	return audio, snr, pllLocked, pllPhase, agcGainDB
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
