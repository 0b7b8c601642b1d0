package demod

import (
	"math"
	"testing"
)

func TestFMDiscriminatesConstantToneOffset(t *testing.T) {
	sampleRate := 48000.0
	toneOffset := 1000.0
	peakDeviation := 5000.0
	squelch := NewSquelch(0, 0, 0) // always open, isolate discriminator math

	fm := NewFM(sampleRate, peakDeviation, 0, 0, 0, squelch)

	n := 256
	samples := make([]complex128, n)
	for i := range samples {
		phase := 2 * math.Pi * toneOffset * float64(i) / sampleRate
		samples[i] = complex(math.Cos(phase), math.Sin(phase))
	}

	audio, _, _, _, open := fm.Process(samples)
	if !open {
		t.Fatalf("expected always-open squelch to keep the channel open")
	}
	if len(audio) != n {
		t.Fatalf("expected %d audio samples, got %d", n, len(audio))
	}

	expected := (2 * math.Pi * toneOffset / sampleRate) * sampleRate / (2 * math.Pi * peakDeviation)
	// Skip the very first sample (defined as zero deviation, no history).
	for i := 1; i < n; i++ {
		if math.Abs(audio[i]-expected) > 1e-6 {
			t.Fatalf("sample %d: expected discriminator output %v, got %v", i, expected, audio[i])
		}
	}
}

func TestFMReportsDeviationAndSNR(t *testing.T) {
	sampleRate := 48000.0
	toneOffset := 1000.0
	peakDeviation := 5000.0
	squelch := NewSquelch(0, 0, 0)
	fm := NewFM(sampleRate, peakDeviation, 0, 0, 0, squelch)

	n := 256
	samples := make([]complex128, n)
	for i := range samples {
		phase := 2 * math.Pi * toneOffset * float64(i) / sampleRate
		samples[i] = complex(math.Cos(phase), math.Sin(phase))
	}

	_, _, freqOffsetHz, snrDB, _ := fm.Process(samples)
	if freqOffsetHz <= 0 {
		t.Fatalf("expected a positive RMS frequency deviation for a constant tone offset, got %v", freqOffsetHz)
	}
	if math.IsNaN(snrDB) || math.IsInf(snrDB, 0) {
		t.Fatalf("expected a finite SNR estimate, got %v", snrDB)
	}
}

func TestFMSquelchMutesAudio(t *testing.T) {
	squelch := NewSquelch(1e9, 1e9, 1) // effectively never opens
	fm := NewFM(48000, 5000, 0, 0, 0, squelch)
	samples := make([]complex128, 16)
	for i := range samples {
		samples[i] = complex(1, 0)
	}
	audio, _, _, _, open := fm.Process(samples)
	if open {
		t.Fatalf("expected squelch to remain closed")
	}
	for _, v := range audio {
		if v != 0 {
			t.Fatalf("expected muted audio when squelch closed, got %v", v)
		}
	}
}
