package demod

import (
	"math"

	"github.com/rjboer/godemod/internal/dsp"
)

// pilotLoop tracks the 19kHz WFM stereo pilot tone with a real-signal
// quadrature loop, the same technique as ToneDetector but retaining phase
// (not just lock magnitude) so the L-R subcarrier can be coherently
// demodulated at its doubled frequency.
type pilotLoop struct {
	sampleRate float64
	phase      float64
	freq       float64     // rad/sample, nominal 2*pi*19000/sampleRate
	iLP,       qLP float64
	errVar     float64
	locked     bool
}

func newPilotLoop(sampleRate float64) *pilotLoop {
	return &pilotLoop{
		sampleRate: sampleRate,
		freq: 2 * math.Pi * 19000 / sampleRate,
	}
}

func (p *pilotLoop) step(x float64) {
	i := x * math.Cos(p.phase)
	q := -x * math.Sin(p.phase)
	const alpha = 0.01
	p.iLP = (1-alpha)*p.iLP + alpha*i
	p.qLP = (1-alpha)*p.qLP + alpha*q

	err := math.Atan2(p.qLP, p.iLP)
	const kp, ki = 0.05, 0.001
	p.freq += ki * err
	p.phase += p.freq + kp*err
	if p.phase > 2*math.Pi {
		p.phase -= 2 * math.Pi
	} else if p.phase < 0 {
		p.phase += 2 * math.Pi
	}

	p.errVar = (1-alpha)*p.errVar + alpha*err*err
	p.locked = p.errVar < 0.02 && math.Hypot(p.iLP, p.qLP) > 1e-3
}

// WFM implements the wideband broadcast FM demodulator:
// the same phase-discriminator front end as FM, followed by a pilot-based
// stereo decoder.
type WFM struct {
	SampleRate    float64
	PeakDeviation float64
	StereoWanted  bool

	pilot       *pilotLoop
	lowpassLR   *Deemphasis // L+R composite lowpass, ~15kHz
	lowpassDiff *Deemphasis // L-R lowpass after coherent demod
	DeemphLeft  *Deemphasis
	DeemphRight *Deemphasis
	Squelch     *Squelch

	prevSample  complex128
	havePrev    bool
	basebandPow float64
	noiseFloor  float64
}

// NewWFM builds a WFM demodulator. deemphTau is typically 75us (US) or
// 50us (EU broadcast).
func NewWFM(sampleRate, peakDeviation, deemphTau float64, stereoWanted bool, squelch *Squelch) *WFM {
	const compositeLowpassHz = 15000
	tau := 1 / (2 * math.Pi * compositeLowpassHz)
	return &WFM{
		SampleRate: sampleRate,
		PeakDeviation: peakDeviation,
		StereoWanted: stereoWanted,
		pilot: newPilotLoop(sampleRate),
		lowpassLR: NewDeemphasis(tau, sampleRate),
		lowpassDiff: NewDeemphasis(tau, sampleRate),
		DeemphLeft: NewDeemphasis(deemphTau, sampleRate),
		DeemphRight: NewDeemphasis(deemphTau, sampleRate),
		Squelch: squelch,
	}
}

// Process demodulates one block into stereo (or mono, duplicated to both
// channels when the pilot is unlocked or stereo is not requested) PCM. It
// also returns the pilot's lock state, the RMS frequency deviation in Hz,
// and an SNR estimate in dB.
func (w *WFM) Process(samples []complex128) (left, right []float64, stereoLocked bool, freqOffsetHz, snrDB float64) {
	if len(samples) == 0 {
		return nil, nil, false, 0, 0
	}

	all := samples
	if w.havePrev {
		all = make([]complex128, 0, len(samples)+1)
		all = append(all, w.prevSample)
		all = append(all, samples...)
	}
	disc := dsp.SampleDiscriminator(all)
	if !w.havePrev {
		disc = append([]float64{0}, disc...)
	}
	w.prevSample = samples[len(samples)-1]
	w.havePrev = true

	scale := w.SampleRate / (2 * math.Pi * w.PeakDeviation)

	left = make([]float64, len(disc))
	right = make([]float64, len(disc))
	var power float64
	for i, d := range disc {
		composite := d * scale
		power += composite * composite

		w.pilot.step(composite)
		lPlusR := w.lowpassLR.Step(composite)

		doubled := math.Cos(2 * w.pilot.phase)
		lMinusRRaw := w.lowpassDiff.Step(composite * doubled * 2)

		locked := w.pilot.locked && w.StereoWanted
		var l, r float64
		if locked {
			l = lPlusR + lMinusRRaw
			r = lPlusR - lMinusRRaw
		} else {
			l = lPlusR
			r = lPlusR
		}
		left[i] = w.DeemphLeft.Step(l)
		right[i] = w.DeemphRight.Step(r)
		stereoLocked = locked
	}
	w.basebandPow = power / float64(len(disc))
	freqOffsetHz = math.Sqrt(w.basebandPow) * w.PeakDeviation
	snrDB = snrEstimate(w.basebandPow, &w.noiseFloor)

	state := w.Squelch.Update(w.basebandPow)
	if state == Closed {
		for i := range left {
			left[i] = 0
			right[i] = 0
		}
	}
	return left, right, stereoLocked, freqOffsetHz, snrDB
}

// BasebandPower returns the most recently computed discriminator output
// power.
func (w *WFM) BasebandPower() float64 { return w.basebandPow }
