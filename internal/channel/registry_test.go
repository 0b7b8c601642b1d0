package channel

import (
	"testing"
	"time"
)

func TestCreateRejectsReservedSSRC(t *testing.T) {
	r := NewRegistry(10, nil)
	now := time.Unix(0, 0)
	if _, err := r.Create(ReservedTemplate, now); err == nil {
		t.Fatalf("expected error creating ssrc 0")
	}
	if _, err := r.Create(Broadcast, now); err == nil {
		t.Fatalf("expected error creating broadcast ssrc")
	}
}

func TestSSRCBijectivity(t *testing.T) {
	r := NewRegistry(10, nil)
	now := time.Unix(0, 0)

	ch, err := r.Create(42, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.SSRC != 42 {
		t.Fatalf("expected ssrc 42, got %d", ch.SSRC)
	}

	if _, err := r.Create(42, now); err == nil {
		t.Fatalf("expected error re-creating in-use ssrc")
	}

	found, ok := r.Lookup(42)
	if !ok || found != ch {
		t.Fatalf("expected lookup to return the same channel instance")
	}

	r.Remove(42)
	if _, ok := r.Lookup(42); ok {
		t.Fatalf("expected ssrc to be free after removal")
	}

	// Once released, the ssrc may be reused by a new channel.
	reused, err := r.Create(42, now)
	if err != nil {
		t.Fatalf("unexpected error reusing freed ssrc: %v", err)
	}
	if reused == ch {
		t.Fatalf("expected a fresh channel instance on reuse")
	}
}

func TestIdleExpiryBoundary(t *testing.T) {
	r := NewRegistry(3, nil)
	now := time.Unix(0, 0)
	if _, err := r.Create(7, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Lifetime starts at 3; two ticks should not yet expire it, the
	// third crosses the boundary.
	for i := 0; i < 2; i++ {
		if expired := r.Tick(); len(expired) != 0 {
			t.Fatalf("channel expired too early on tick %d: %v", i, expired)
		}
	}
	expired := r.Tick()
	if len(expired) != 1 || expired[0] != 7 {
		t.Fatalf("expected ssrc 7 to expire on the boundary tick, got %v", expired)
	}
	if _, ok := r.Lookup(7); ok {
		t.Fatalf("expected expired channel to be removed from the registry")
	}
}

func TestRefreshLifetimeOnlyForNonIdleChannel(t *testing.T) {
	ch := New(1, 5, time.Unix(0, 0))
	// Idle (Freq == 0): callers must not refresh; simulate that by never
	// calling RefreshLifetime and confirming the countdown still expires.
	for i := 0; i < 5; i++ {
		ch.Tick()
	}
	if ch.Lifetime() != 0 {
		t.Fatalf("expected idle channel lifetime to reach zero, got %d", ch.Lifetime())
	}

	ch2 := New(2, 5, time.Unix(0, 0))
	ch2.Tune.Freq = 100e6
	ch2.Tick()
	ch2.Tick()
	ch2.RefreshLifetime()
	if ch2.Lifetime() != 5 {
		t.Fatalf("expected refreshed lifetime to reset to idle timeout, got %d", ch2.Lifetime())
	}
}

func TestStaggerBroadcastSpacing(t *testing.T) {
	r := NewRegistry(10, nil)
	now := time.Unix(0, 0)
	for i := uint32(1); i <= 5; i++ {
		if _, err := r.Create(i, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	r.StaggerBroadcast()
	chans := r.All()
	for i, ch := range chans {
		want := i/2 + 1
		if !ch.TickGlobalTimer() && want == 1 {
			// A timer armed to 1 ticks down to 0 and fires immediately.
			t.Fatalf("expected channel %d's timer of 1 to fire on first tick", i)
		}
	}
}

func TestSquelchAlwaysOpenSentinel(t *testing.T) {
	s := Squelch{}
	if !s.AlwaysOpen() {
		t.Fatalf("expected zero-value thresholds to mean always-open")
	}
	s.OpenThreshold = 0.5
	if s.AlwaysOpen() {
		t.Fatalf("expected non-zero open threshold to disable the sentinel")
	}
}

func TestSubmitCommandSingleSlot(t *testing.T) {
	ch := New(1, 5, time.Unix(0, 0))
	if !ch.SubmitCommand([]byte{1, 2, 3}) {
		t.Fatalf("expected first command to be accepted")
	}
	if ch.SubmitCommand([]byte{4, 5, 6}) {
		t.Fatalf("expected second command to be refused while slot occupied")
	}
	got := ch.TakeCommand()
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("unexpected command bytes: %v", got)
	}
	if !ch.SubmitCommand([]byte{9}) {
		t.Fatalf("expected slot to accept a new command after draining")
	}
}
