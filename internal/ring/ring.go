// Package ring implements the input ring buffer a frontend writes samples
// into and the master FFT stage reads back out of.
//
// The buffer is a plain circular slice of complex128 samples guarded by a
// mutex plus a broadcast condvar, the same "producer writes, publishes a
// sequence number, broadcasts" shape the master FFT stage (internal/master)
// uses one layer up, grounded on a producer/consumer streaming loop in
// connectionmgr/void.SocketReader: a single writer feeds a shared buffer
// while any number of readers wait on a wakeup rather than polling.
package ring

import "sync"

// Layout describes how raw samples are interpreted: whether the frontend
// delivers real (I-only) or complex (I/Q) samples.
type Layout int

const (
	Complex Layout = iota
	Real
)

// Buffer is a fixed-capacity circular buffer of complex samples. Real
// frontends still store their samples as complex128 with a zero imaginary
// part — Layout records the original format for downstream FFT windowing
// (a real-only master FFT stage is a documented future optimization, not
// implemented here; see REAL/COMPLEX in_type).
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []complex128
	layout Layout

	writeIdx int    // next slot to be written, mod len(data)
	seq      uint64 // monotonically increasing count of samples written
	closed   bool

	underruns uint64 // reader asked for samples not yet written
	overruns  uint64 // writer wrapped over samples a reader hadn't consumed
}

// New allocates a ring buffer of the given capacity (in samples).
func New(capacity int, layout Layout) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Buffer{
		data: make([]complex128, capacity),
		layout: layout,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Layout returns the sample format the buffer was created with.
func (b *Buffer) Layout() Layout { return b.layout }

// Cap returns the buffer's capacity in samples.
func (b *Buffer) Cap() int { return len(b.data) }

// Write appends samples to the ring, overwriting the oldest data if the
// writer runs ahead of every reader, and wakes any goroutine blocked in
// Wait. The mutex serves as the write-pointer's memory fence.
func (b *Buffer) Write(samples []complex64) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	n := len(b.data)
	if len(samples) > n {
		samples = samples[len(samples)-n:]
		b.overruns += uint64(len(samples))
	}
	for _, s := range samples {
		b.data[b.writeIdx] = complex(float64(real(s)), float64(imag(s)))
		b.writeIdx = (b.writeIdx + 1) % n
	}
	b.seq += uint64(len(samples))
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Sequence returns the total number of samples ever written.
func (b *Buffer) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Snapshot copies the most recent n samples (n <= capacity) into dst,
// oldest first, along with the sequence number as of the copy. Used by the
// master FFT stage to pull the newest block without holding the ring
// locked during the FFT itself.
func (b *Buffer) Snapshot(dst []complex128) (n int, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = len(dst)
	if n > len(b.data) {
		n = len(b.data)
		dst = dst[:n]
	}
	start := (b.writeIdx - n + len(b.data)*2) % len(b.data)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(start+i)%len(b.data)]
	}
	if uint64(n) > b.seq {
		b.underruns++
	}
	return n, b.seq
}

// Wait blocks until the sequence number advances past after, or the
// buffer is closed. It returns the new sequence number and whether the
// buffer is still open.
func (b *Buffer) Wait(after uint64) (seq uint64, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.seq <= after && !b.closed {
		b.cond.Wait()
	}
	return b.seq, !b.closed
}

// Close marks the buffer closed and wakes every waiter so producer
// shutdown propagates to the master FFT stage's reader goroutine.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Stats returns the underrun/overrun counters: conditions the buffer
// tracks but never treats as fatal.
func (b *Buffer) Stats() (underruns, overruns uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underruns, b.overruns
}
