package demod

import (
	"math"

	"github.com/rjboer/godemod/internal/dsp"
)

// FM implements the narrowband FM demodulator: a
// phase-difference discriminator, de-emphasis, an optional CTCSS tone
// detector, and the shared squelch machine.
//
// The discriminator is dsp.SampleDiscriminator, an
// arg(x[n]*conj(x[n-1])) accumulator (originally a monopulse
// phase estimator, generalized in internal/dsp/correlate.go into a
// per-sample primitive shared across every demodulator that needs a phase
// difference).
type FM struct {
	SampleRate    float64
	PeakDeviation float64

	Deemph  *Deemphasis
	Tone    *ToneDetector
	Squelch *Squelch

	prevSample  complex128
	havePrev    bool
	basebandPow float64
	noiseFloor  float64
}

// NewFM builds an FM demodulator.
func NewFM(sampleRate, peakDeviation float64, deemphTau float64, toneHz, toneThreshold float64, squelch *Squelch) *FM {
	return &FM{
		SampleRate: sampleRate,
		PeakDeviation: peakDeviation,
		Deemph: NewDeemphasis(deemphTau, sampleRate),
		Tone: NewToneDetector(toneHz, sampleRate, toneThreshold),
		Squelch: squelch,
	}
}

// Process demodulates one block of complex baseband samples into mono
// PCM. It returns the audio samples, the tone-detector deviation (0 if
// disabled), the RMS frequency deviation in Hz, an SNR estimate in dB, and
// whether the squelch is open.
func (f *FM) Process(samples []complex128) (audio []float64, toneDeviation, freqOffsetHz, snrDB float64, open bool) {
	if len(samples) == 0 {
		return nil, 0, 0, 0, !f.Squelch.Muted()
	}

	all := samples
	if f.havePrev {
		all = make([]complex128, 0, len(samples)+1)
		all = append(all, f.prevSample)
		all = append(all, samples...)
	}
	disc := dsp.SampleDiscriminator(all)
	if !f.havePrev {
		// No history yet: the first sample has no predecessor, so its
		// discriminator output is defined as zero deviation.
		disc = append([]float64{0}, disc...)
	}
	f.prevSample = samples[len(samples)-1]
	f.havePrev = true

	scale := f.SampleRate / (2 * math.Pi * f.PeakDeviation)

	audio = make([]float64, len(disc))
	var power float64
	for i, d := range disc {
		v := d * scale
		power += v * v
		if f.Deemph != nil {
			v = f.Deemph.Step(v)
		}
		audio[i] = v
	}
	f.basebandPow = power / float64(len(disc))
	freqOffsetHz = math.Sqrt(f.basebandPow) * f.PeakDeviation
	snrDB = snrEstimate(f.basebandPow, &f.noiseFloor)

	if f.Tone != nil && f.Tone.Enabled() {
		for _, v := range audio {
			toneDeviation, _ = f.Tone.Step(v)
		}
	}

	metric := f.basebandPow
	if f.Tone != nil && f.Tone.Enabled() {
		metric = toneDeviation
	}
	state := f.Squelch.Update(metric)
	open = state != Closed
	if !open {
		for i := range audio {
			audio[i] = 0
		}
	}
	return audio, toneDeviation, freqOffsetHz, snrDB, open
}

// BasebandPower returns the most recently computed discriminator output
// power, one of the squelch metric candidates.
func (f *FM) BasebandPower() float64 { return f.basebandPow }

// snrEstimate derives a running SNR estimate in dB from a per-block power
// reading and a caller-owned noise floor: the floor tracks the minimum
// recent power with a slow release, so quiet blocks pull it down
// immediately and the ratio of any louder block to that floor approximates
// signal-to-noise.
func snrEstimate(power float64, floor *float64) float64 {
	if *floor <= 0 || power < *floor {
		*floor = power
	} else {
		const release = 0.001
		*floor += release * (power - *floor)
	}
	if *floor <= 0 || power <= 0 {
		return 0
	}
	return 10 * math.Log10(power / *floor)
}
