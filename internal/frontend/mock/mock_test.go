package mock

import (
	"context"
	"testing"

	"github.com/rjboer/godemod/internal/ring"
)

func TestSetupDefaulting(t *testing.T) {
	d := New(nil)
	desc, err := d.Setup(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if desc.SampleRate != 2_000_000 {
		t.Fatalf("expected default sample rate 2e6, got %v", desc.SampleRate)
	}
	if !desc.Complex {
		t.Fatalf("expected complex descriptor")
	}
	if desc.ScaleADPower2FS == nil {
		t.Fatalf("expected a non-nil ScaleADPower2FS")
	}
}

func TestStartWritesToRing(t *testing.T) {
	d := New(nil)
	_, err := d.Setup(context.Background(), map[string]string{
		"sample_rate_hz": "2000000",
		"block_size":     "128",
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	buf := ring.New(1024, ring.Complex)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx, buf); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	seq, open := buf.Wait(0)
	if !open {
		t.Fatalf("expected ring to stay open")
	}
	if seq == 0 {
		t.Fatalf("expected sequence to advance past 0")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestTuneReturnsRequestedFrequency(t *testing.T) {
	d := New(nil)
	if _, err := d.Setup(context.Background(), nil); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	actual, err := d.Tune(103_500_000)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	if actual != 103_500_000 {
		t.Fatalf("expected exact tune echo, got %v", actual)
	}
}

func TestAttenUnsupported(t *testing.T) {
	d := New(nil)
	if err := d.Atten(3); err == nil {
		t.Fatalf("expected attenuation to be reported unsupported")
	}
}

func TestCloseWithoutStartIsSafe(t *testing.T) {
	d := New(nil)
	if err := d.Close(); err != nil {
		t.Fatalf("close on unstarted device should be a no-op, got %v", err)
	}
}
