package dsp

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestPhaseDifferenceKnownRotation(t *testing.T) {
	a := []complex128{1, 1, 1, 1}
	rot := cmplx.Exp(complex(0, math.Pi/4))
	b := make([]complex128, len(a))
	for i, v := range a {
		b[i] = v * rot
	}
	got := PhaseDifference(a, b)
	if math.Abs(got-math.Pi/4) > 1e-9 {
		t.Fatalf("expected phase pi/4, got %v", got)
	}
}

func TestPhaseDifferenceEmpty(t *testing.T) {
	if PhaseDifference(nil, nil) != 0 {
		t.Fatalf("expected 0 for empty input")
	}
	if PhaseDifference([]complex128{0, 0}, []complex128{0, 0}) != 0 {
		t.Fatalf("expected 0 for all-zero accumulator")
	}
}

func TestSampleDiscriminatorConstantTone(t *testing.T) {
	n := 16
	step := math.Pi / 8
	samples := make([]complex128, n)
	for i := range samples {
		samples[i] = cmplx.Exp(complex(0, step*float64(i)))
	}
	out := SampleDiscriminator(samples)
	if len(out) != n-1 {
		t.Fatalf("unexpected length: %d", len(out))
	}
	for i, v := range out {
		if math.Abs(v-step) > 1e-9 {
			t.Fatalf("index %d: expected %v got %v", i, step, v)
		}
	}
}

func TestSampleDiscriminatorShortInput(t *testing.T) {
	if len(SampleDiscriminator([]complex128{1})) != 0 {
		t.Fatalf("expected empty result for single-sample input")
	}
}
