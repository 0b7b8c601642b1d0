package demod

import "math"

// AGC implements attack-fast/release-slow automatic gain control.
type AGC struct {
	Enable       bool
	Threshold    float64 // target amplitude
	Headroom     float64
	RecoveryRate float64 // dB/sec
	Hangtime     float64 // seconds
	BlockRate    float64 // blocks/sec, needed to convert Hangtime/RecoveryRate to per-block units

	gain        float64
	hangCounter int
}

// NewAGC builds an AGC with unity manual gain.
func NewAGC(threshold, headroom, recoveryRateDBPerSec, hangtimeSec, blockRate float64) *AGC {
	return &AGC{
		Threshold: threshold,
		Headroom: headroom,
		RecoveryRate: recoveryRateDBPerSec,
		Hangtime: hangtimeSec,
		BlockRate: blockRate,
		gain: 1,
	}
}

// Gain returns the current linear gain.
func (a *AGC) Gain() float64 { return a.gain }

// SetManualGain sets gain directly; used when Enable is false.
func (a *AGC) SetManualGain(g float64) { a.gain = g }

// Update runs one block of the AGC algorithm against the block's peak
// sample magnitude p:
// - if p*gain > headroom: attack immediately, gain = headroom/p.
// - else if hang_counter > 0: decrement, hold gain.
// - else: recover gain toward the threshold at recovery_rate.
func (a *AGC) Update(peak float64) float64 {
	if !a.Enable {
		return a.gain
	}
	if peak <= 0 {
		return a.gain
	}

	if peak*a.gain > a.Headroom {
		a.gain = a.Headroom / peak
		a.hangCounter = a.hangtimeBlocks()
		return a.gain
	}

	if a.hangCounter > 0 {
		a.hangCounter--
		return a.gain
	}

	target := a.Threshold / peak
	if target <= a.gain {
		return a.gain
	}
	step := a.recoveryPerBlock()
	a.gain *= step
	if a.gain > target {
		a.gain = target
	}
	return a.gain
}

func (a *AGC) hangtimeBlocks() int {
	if a.BlockRate <= 0 {
		return 0
	}
	return int(a.Hangtime*a.BlockRate + 0.5)
}

// recoveryPerBlock converts the dB/sec recovery rate into a linear
// per-block gain multiplier.
func (a *AGC) recoveryPerBlock() float64 {
	if a.BlockRate <= 0 {
		return 1
	}
	dbPerBlock := a.RecoveryRate / a.BlockRate
	return math.Pow(10, dbPerBlock/20)
}
