// Package diag implements the local, in-process diagnostics surface: a hub
// fanning out per-channel status snapshots to local subscribers, an
// optional HTTP endpoint, and a stdout reporter. This is not metrics
// shipping to a third party — every consumer lives in the same process or
// on the same host.
//
// Grounded on internal/telemetry (Hub/WebServer/StdoutReporter),
// generalized from a single angle-tracking Sample type to per-channel
// Snapshot fan-out: many channels, each with its own history and live feed,
// rather than one shared timeline.
package diag

import (
	"sync"
	"time"

	"github.com/rjboer/godemod/internal/channel"
)

// Snapshot is one channel's diagnostic point in time, cheap enough to take
// on every status emission without touching the wire codec.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	SSRC      uint32    `json:"ssrc"`
	Freq      float64   `json:"freq"`
	Demod     string    `json:"demod"`
	Squelch   string    `json:"squelch"`
	SNR       float64   `json:"snr_db"`
	PacketsIn uint64    `json:"packets_in"`
	PacketsOut uint64   `json:"packets_out"`
	Errors    uint64    `json:"errors"`
	BlockDrops uint64   `json:"block_drops"`
}

func squelchName(s channel.SquelchState) string {
	switch s {
	case channel.SquelchOpen:
		return "open"
	case channel.SquelchClosing:
		return "closing"
	default:
		return "closed"
	}
}

// snapshotOf builds a diagnostic snapshot from a live channel.
func snapshotOf(ch *channel.Channel) Snapshot {
	return Snapshot{
		Timestamp:  time.Now(),
		SSRC:       ch.SSRC,
		Freq:       ch.Tune.Freq,
		Demod:      ch.Demod.Type.String(),
		Squelch:    squelchName(ch.Squelch.State),
		SNR:        ch.Signal.SNR,
		PacketsIn:  ch.Counters.PacketsIn,
		PacketsOut: ch.Counters.PacketsOut,
		Errors:     ch.Counters.Errors,
		BlockDrops: ch.Counters.BlockDrops,
	}
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
)

func clampHistoryLimit(n int) int {
	if n < minHistoryLimit {
		return 500
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

// Hub collects per-channel history and fans out live snapshots to
// subscribers, one ring per ssrc.
type Hub struct {
	mu           sync.RWMutex
	historyLimit int
	history      map[uint32][]Snapshot
	subscribers  map[chan Snapshot]struct{}
}

// NewHub builds a diagnostics hub keeping up to historyLimit snapshots per
// channel (clamped to a sane range if zero or out of bounds).
func NewHub(historyLimit int) *Hub {
	return &Hub{
		historyLimit: clampHistoryLimit(historyLimit),
		history:      make(map[uint32][]Snapshot),
		subscribers:  make(map[chan Snapshot]struct{}),
	}
}

// Report records ch's current state as a new snapshot and fans it out to
// live subscribers. Intended to be called from control.Hooks.SendStatus so
// every STATUS emission also feeds diagnostics.
func (h *Hub) Report(ch *channel.Channel) {
	sample := snapshotOf(ch)

	h.mu.Lock()
	hist := append(h.history[sample.SSRC], sample)
	if len(hist) > h.historyLimit {
		hist = hist[len(hist)-h.historyLimit:]
	}
	h.history[sample.SSRC] = hist
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// History returns a copy of the stored snapshots for ssrc.
func (h *Hub) History(ssrc uint32) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.history[ssrc]
	out := make([]Snapshot, len(src))
	copy(out, src)
	return out
}

// AllHistory returns a copy of every channel's stored snapshots, keyed by
// ssrc, for the "list everything" HTTP endpoint.
func (h *Hub) AllHistory() map[uint32][]Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uint32][]Snapshot, len(h.history))
	for ssrc, hist := range h.history {
		cp := make([]Snapshot, len(hist))
		copy(cp, hist)
		out[ssrc] = cp
	}
	return out
}

// Subscribe registers a listener for live snapshot updates across every
// channel. Callers must invoke the returned cancel func to unsubscribe.
func (h *Hub) Subscribe() (chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Reporter fans out a channel's current state to a diagnostics sink.
type Reporter interface {
	Report(ch *channel.Channel)
}

// MultiReporter fans out to multiple sinks, e.g. a Hub and a StdoutReporter
// at once, matching MultiReporter shape.
type MultiReporter []Reporter

// Report forwards ch to every configured reporter.
func (m MultiReporter) Report(ch *channel.Channel) {
	for _, r := range m {
		if r != nil {
			r.Report(ch)
		}
	}
}
