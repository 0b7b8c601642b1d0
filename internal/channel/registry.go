package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/rjboer/godemod/internal/logging"
)

// Registry maps ssrc to Channel one-to-one and drives idle expiration.
// Grounded on app.TrackManager, generalized: ssrc is caller-supplied
// (from the wire protocol) rather than allocated by the registry, so
// Create takes it as an argument and rejects collisions instead of
// minting a fresh id.
type Registry struct {
	mu    sync.RWMutex
	chans map[uint32]*Channel
	order []uint32

	idleTimeoutBlocks int
	log               logging.Logger
}

// NewRegistry builds an empty registry. idleTimeoutBlocks seeds every new
// channel's lifetime countdown.
func NewRegistry(idleTimeoutBlocks int, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		chans: make(map[uint32]*Channel),
		idleTimeoutBlocks: idleTimeoutBlocks,
		log: logging.Subsystem(log, "channel.registry"),
	}
}

// Create allocates a new channel for ssrc. It fails for the reserved ssrc
// values and for an ssrc already in use, preserving the bijective mapping.
func (r *Registry) Create(ssrc uint32, now time.Time) (*Channel, error) {
	if ssrc == ReservedTemplate {
		return nil, fmt.Errorf("channel: ssrc 0 is reserved (template)")
	}
	if ssrc == Broadcast {
		return nil, fmt.Errorf("channel: ssrc 0xFFFFFFFF is reserved (broadcast)")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.chans[ssrc]; ok && existing.InUse() {
		return nil, fmt.Errorf("channel: ssrc %08x already in use", ssrc)
	}

	ch := New(ssrc, r.idleTimeoutBlocks, now)
	r.chans[ssrc] = ch
	r.order = append(r.order, ssrc)
	r.log.Info("channel created", logging.Field{Key: "ssrc", Value: ssrc})
	return ch, nil
}

// Lookup returns the channel for ssrc, if any and still in use.
func (r *Registry) Lookup(ssrc uint32) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.chans[ssrc]
	if !ok || !ch.InUse() {
		return nil, false
	}
	return ch, true
}

// All returns every in-use channel in creation order — the ordering
// broadcast dispatch staggers status over.
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.order))
	for _, ssrc := range r.order {
		if ch, ok := r.chans[ssrc]; ok && ch.InUse() {
			out = append(out, ch)
		}
	}
	return out
}

// Remove drops ssrc from the index entirely, releasing the slot for reuse.
func (r *Registry) Remove(ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.chans[ssrc]; ok {
		ch.MarkTorndown()
		delete(r.chans, ssrc)
	}
	for i, s := range r.order {
		if s == ssrc {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// StaggerBroadcast implements step 3: for every in-use channel
// with a valid ssrc, arm its status-broadcast timer at ceil-two-at-a-time
// spacing (global_timer = i/2 + 1) so a flood of broadcast STATUS replies
// does not land on a single block tick.
func (r *Registry) StaggerBroadcast() {
	for i, ch := range r.All() {
		ch.SetGlobalTimer(i/2 + 1)
	}
}

// Tick advances every in-use channel's idle-expiry countdown by one block
// and tears down (removes from the registry) any that just expired,
// returning their ssrcs for the caller to log or report.
func (r *Registry) Tick() []uint32 {
	var expired []uint32
	for _, ch := range r.All() {
		if ch.Tick() {
			expired = append(expired, ch.SSRC)
			r.Remove(ch.SSRC)
			r.log.Info("channel expired", logging.Field{Key: "ssrc", Value: ch.SSRC})
		}
	}
	return expired
}

// Len reports the number of in-use channels.
func (r *Registry) Len() int {
	return len(r.All())
}
