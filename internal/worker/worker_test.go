package worker

import (
	"math"
	"testing"
)

func TestBinShiftAndRemainderSnapsToNearestBin(t *testing.T) {
	binBW := 1000.0
	shift, remainder := binShiftAndRemainder(14074500, 14000000, binBW)
	if shift != 75 {
		t.Fatalf("expected bin shift 75, got %d", shift)
	}
	if math.Abs(remainder-(-500)) > 1e-9 {
		t.Fatalf("expected remainder -500, got %v", remainder)
	}
}

func TestBinShiftAndRemainderZeroBandwidthIsNaN(t *testing.T) {
	shift, remainder := binShiftAndRemainder(1000, 0, 0)
	if shift != 0 {
		t.Fatalf("expected shift 0 for degenerate bandwidth, got %d", shift)
	}
	if !math.IsNaN(remainder) {
		t.Fatalf("expected NaN remainder forcing oscillator reinit, got %v", remainder)
	}
}

func TestClampInt16SaturatesAtFullScale(t *testing.T) {
	if got := clampInt16(2.0); got != 32767 {
		t.Fatalf("expected clamp to +full scale, got %d", got)
	}
	if got := clampInt16(-2.0); got != -32768 {
		t.Fatalf("expected clamp to -full scale, got %d", got)
	}
	if got := clampInt16(0); got != 0 {
		t.Fatalf("expected 0 to map to 0, got %d", got)
	}
}

func TestMono16ProducesTwoBytesPerSample(t *testing.T) {
	out := mono16([]float64{0.5, -0.5, 0})
	if len(out) != 6 {
		t.Fatalf("expected 6 bytes for 3 mono samples, got %d", len(out))
	}
}

func TestInterleave16ProducesFourBytesPerFrame(t *testing.T) {
	out := interleave16([]float64{0.5, 0.25}, []float64{-0.5, -0.25})
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes for 2 stereo frames, got %d", len(out))
	}
}

func TestAbsHelper(t *testing.T) {
	if abs(-5) != 5 || abs(5) != 5 || abs(0) != 0 {
		t.Fatalf("abs helper misbehaved")
	}
}
