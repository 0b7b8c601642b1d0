package ring

import (
	"testing"
	"time"
)

func TestWriteAndSnapshot(t *testing.T) {
	b := New(4, Complex)
	b.Write([]complex64{1, 2, 3})
	dst := make([]complex128, 3)
	n, seq := b.Snapshot(dst)
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	if seq != 3 {
		t.Fatalf("expected sequence 3, got %d", seq)
	}
	want := []complex128{1, 2, 3}
	for i, v := range want {
		if dst[i] != v {
			t.Fatalf("index %d: got %v want %v", i, dst[i], v)
		}
	}
}

func TestWriteWrapsAndCountsOverrun(t *testing.T) {
	b := New(2, Complex)
	b.Write([]complex64{1, 2, 3, 4})
	_, overruns := b.Stats()
	if overruns == 0 {
		t.Fatalf("expected overrun to be counted when write exceeds capacity")
	}
	dst := make([]complex128, 2)
	n, _ := b.Snapshot(dst)
	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if dst[0] != 3 || dst[1] != 4 {
		t.Fatalf("expected the newest 2 samples [3 4], got %v", dst)
	}
}

func TestWaitWakesOnWrite(t *testing.T) {
	b := New(8, Complex)
	done := make(chan uint64, 1)
	go func() {
		seq, open := b.Wait(0)
		if !open {
			return
		}
		done <- seq
	}()

	time.Sleep(10 * time.Millisecond)
	b.Write([]complex64{1, 2})

	select {
	case seq := <-done:
		if seq != 2 {
			t.Fatalf("expected sequence 2, got %d", seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake up after Write")
	}
}

func TestWaitWakesOnClose(t *testing.T) {
	b := New(4, Complex)
	done := make(chan bool, 1)
	go func() {
		_, open := b.Wait(0)
		done <- open
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case open := <-done:
		if open {
			t.Fatal("expected buffer to report closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake up after Close")
	}
}
