package demod

import "testing"

func TestSpectrumComplexMappingIsIdentity(t *testing.T) {
	s := NewSpectrum(4, 1000, 0)
	// Input ordered ascending from most-negative to most-positive frequency;
	// the most-negative bin must land at out[0] and the most-positive at
	// out[len-1].
	input := []complex128{1, 2, 3, 4}
	out := s.ProcessComplex(input)
	if len(out) != 4 {
		t.Fatalf("expected 4 output bins, got %d", len(out))
	}
	if out[0] != 1 || out[1] != 4 || out[2] != 9 || out[3] != 16 {
		t.Fatalf("unexpected mapping: %v", out)
	}
}

func TestSpectrumRealFullCoverageAverages(t *testing.T) {
	s := NewSpectrum(2, 1000, 0)
	input := []complex128{1, 1, 3, 3} // 4 input bins -> 2 output bins of 2 each
	out := s.ProcessRealFullCoverage(input)
	if len(out) != 2 {
		t.Fatalf("expected 2 output bins, got %d", len(out))
	}
	if out[0] != 1 || out[1] != 9 {
		t.Fatalf("expected averaged power per output bin, got %v", out)
	}
}

func TestSpectrumReallocatePreservesNothingButResizes(t *testing.T) {
	s := NewSpectrum(4, 1000, 0)
	s.ProcessComplex([]complex128{1, 1, 1, 1})
	s.Reallocate(8, 500)
	if len(s.BinData()) != 8 {
		t.Fatalf("expected reallocated buffer of length 8, got %d", len(s.BinData()))
	}
}

func TestInputBinCount(t *testing.T) {
	got := InputBinCount(64, 100, 1024, 2e6)
	if got != 3 {
		t.Fatalf("expected input_bins=3, got %d", got)
	}
}
