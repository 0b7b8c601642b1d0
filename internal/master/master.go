// Package master implements the overlap-save FFT stage: it consumes
// samples from an internal/ring.Buffer at a fixed block cadence and
// publishes the latest frequency-domain block for channel workers to
// consume, tagged with a monotonic sequence number.
//
// Grounded on internal/dsp/cached.go (a cached FFT plan
// reused across repeated calls instead of rebuilt per block) and the
// producer/consumer shape of its sdr.MockSDR.RX streaming loop, adapted
// from a one-shot per-scan FFT into a continuously running stage.
package master

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/godemod/internal/dsp"
	"github.com/rjboer/godemod/internal/logging"
	"github.com/rjboer/godemod/internal/ring"
)

// Block is one published frequency-domain snapshot.
type Block struct {
	Bins       []complex128
	Seq        uint64
	StartNanos int64
}

// Stage runs the overlap-save FFT loop over a ring.Buffer.
type Stage struct {
	src          *ring.Buffer
	block        int
	nfft         int
	complexInput bool
	plan         *dsp.Plan

	latest atomic.Pointer[Block]

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	log logging.Logger
}

// New builds a master stage. blockSize is the number of new samples
// consumed per published block; impulseLength is the longest passband
// filter the channelizer will apply against this stage's output, which
// fixes N_fft = blockSize + impulseLength - 1 per spec's overlap-save
// sizing. complexInput selects between a full N_fft complex spectrum and
// the N_fft/2+1 non-redundant half used for real-sampled frontends.
func New(src *ring.Buffer, blockSize, impulseLength int, complexInput bool, log logging.Logger) *Stage {
	if blockSize <= 0 {
		blockSize = 1
	}
	if impulseLength <= 0 {
		impulseLength = 1
	}
	nfft := blockSize + impulseLength - 1
	s := &Stage{
		src:          src,
		block:        blockSize,
		nfft:         nfft,
		complexInput: complexInput,
		plan:         dsp.NewPlan(nfft),
		log:          logging.Subsystem(log, "master"),
	}
	s.cond = sync.NewCond(&s.mu)
	empty := &Block{}
	s.latest.Store(empty)
	return s
}

// NFFT returns the overlap-save transform size.
func (s *Stage) NFFT() int { return s.nfft }

// BlockSize returns the number of new samples consumed per published block.
func (s *Stage) BlockSize() int { return s.block }

// Latest returns the most recently published block without blocking.
func (s *Stage) Latest() *Block {
	return s.latest.Load()
}

// Wait blocks until a block newer than after has been published or the
// source ring has closed. It returns the newest available block and
// whether the stage is still open.
func (s *Stage) Wait(after uint64) (*Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		b := s.latest.Load()
		if b.Seq > after {
			return b, true
		}
		if s.closed {
			return b, false
		}
		s.cond.Wait()
	}
}

// Run drives the overlap-save loop until ctx is cancelled or the source
// ring closes. It is meant to run on its own goroutine.
func (s *Stage) Run(ctx context.Context) {
	window := make([]complex128, s.nfft)
	var consumedSeq uint64
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			s.finish()
			return
		default:
		}

		newSeq, open := s.src.Wait(consumedSeq)
		if !open {
			s.finish()
			return
		}
		if newSeq < consumedSeq+uint64(s.block) {
			// Spurious wake (e.g. a partial write); wait for a full block.
			continue
		}

		n, snapSeq := s.src.Snapshot(window)
		if n < s.nfft {
			// Still filling the initial history window.
			continue
		}

		freq := s.plan.Forward(nil, window)
		var bins []complex128
		if s.complexInput {
			bins = freq
		} else {
			half := s.nfft/2 + 1
			bins = make([]complex128, half)
			copy(bins, freq[:half])
		}

		seq++
		published := &Block{Bins: bins, Seq: seq, StartNanos: time.Now().UnixNano()}
		s.latest.Store(published)
		consumedSeq = snapSeq

		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (s *Stage) finish() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.log.Info("master stage stopped")
}
