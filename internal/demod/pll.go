package demod

import (
	"math"
	"math/cmplx"
)

// PLL is the second-order carrier-recovery loop, used both for coherent
// SSB/CW carrier tracking and (via Square) for DSB-SC/BPSK. The phase
// discriminator is the argument of each de-rotated sample (of its square,
// halved, in Square mode), applied as a per-sample loop update.
type PLL struct {
	LoopBW float64
	Square bool

	phase     float64
	freq      float64
	rotations int

	errVariance float64
	errMean     float64
	locked      bool

	lockedEnergy     float64
	quadratureEnergy float64
}

// NewPLL builds a PLL with the given loop bandwidth (Hz, normalized to
// sample rate by the caller via LoopBW already expressed in radians/sample
// would be more precise, but the exact loop-filter coefficients are left
// as an implementation detail; this uses the standard proportional+
// integral form with gains derived from LoopBW).
func NewPLL(loopBW float64, square bool) *PLL {
	return &PLL{LoopBW: loopBW, Square: square}
}

// loop gains: critically damped 2nd order loop, natural frequency set by
// LoopBW (already expressed as a fraction of sample rate per block).
func (p *PLL) gains() (kp, ki float64) {
	wn := 2 * math.Pi * p.LoopBW
	zeta := 0.707
	kp = 2 * zeta * wn
	ki = wn * wn
	return kp, ki
}

// Step advances the PLL by one sample, comparing the incoming complex
// sample against the loop's local oscillator and updating phase/frequency
// estimates. It returns the phase-corrected (de-rotated) sample.
func (p *PLL) Step(sample complex128) complex128 {
	ref := cmplx.Exp(complex(0, -p.phase))
	mixed := sample * ref

	target := mixed
	if p.Square {
		target = target * target
	}
	err := cmplx.Phase(target)
	if p.Square {
		err /= 2
	}

	kp, ki := p.gains()
	p.freq += ki * err
	p.phase += p.freq + kp*err
	if p.phase > math.Pi {
		p.phase -= 2 * math.Pi
		p.rotations++
	} else if p.phase < -math.Pi {
		p.phase += 2 * math.Pi
		p.rotations--
	}

	p.updateLockIndicator(err, mixed)
	return mixed
}

// updateLockIndicator tracks a running phase-error variance and the ratio
// of in-phase (locked-arm) to quadrature-arm energy, the two lock signals
// SNR is derived from.
func (p *PLL) updateLockIndicator(err float64, mixed complex128) {
	const alpha = 0.01
	p.errMean = (1-alpha)*p.errMean + alpha*err
	delta := err - p.errMean
	p.errVariance = (1-alpha)*p.errVariance + alpha*delta*delta

	p.lockedEnergy = (1-alpha)*p.lockedEnergy + alpha*real(mixed)*real(mixed)
	p.quadratureEnergy = (1-alpha)*p.quadratureEnergy + alpha*imag(mixed)*imag(mixed)

	const varianceLockThreshold = 0.05
	p.locked = p.errVariance < varianceLockThreshold
}

// Locked reports the current lock indicator.
func (p *PLL) Locked() bool { return p.locked }

// Phase returns the current carrier phase offset, radians.
func (p *PLL) Phase() float64 { return p.phase }

// Rotations returns the unwrapped rotation count.
func (p *PLL) Rotations() int { return p.rotations }

// SNR estimates carrier SNR from the locked-vs-quadrature energy ratio.
func (p *PLL) SNR() float64 {
	if p.quadratureEnergy <= 0 {
		return math.Inf(1)
	}
	ratio := p.lockedEnergy / p.quadratureEnergy
	if ratio <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(ratio)
}
