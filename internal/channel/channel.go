// Package channel defines the Channel entity — the central object of the
// daemon — and the ssrc-keyed registry that creates, looks up, and expires
// them.
//
// Grounded on internal/app.TrackManager (map + creation-order
// slice + expire-by-timeout + drop-oldest-on-capacity), generalized from
// angle tracks keyed by a synthetic incrementing id to channels keyed by an
// externally supplied 32-bit ssrc, with track "confirm/lost" lifecycle
// replaced by an idle-lifetime countdown.
package channel

import (
	"math"
	"sync"
	"time"
)

// DemodType selects which demodulator engine drives a channel.
type DemodType int

const (
	Linear DemodType = iota
	FM
	WFM
	Spectrum
)

func (d DemodType) String() string {
	switch d {
	case Linear:
		return "linear"
	case FM:
		return "fm"
	case WFM:
		return "wfm"
	case Spectrum:
		return "spectrum"
	default:
		return "unknown"
	}
}

// SquelchState is the OPEN/CLOSING/CLOSED machine describes.
type SquelchState int

const (
	SquelchClosed SquelchState = iota
	SquelchClosing
	SquelchOpen
)

// Reserved ssrc values, 
const (
	ReservedTemplate uint32 = 0
	Broadcast uint32 = 0xFFFFFFFF
)

// Tune holds the channel's frequency-domain positioning.
type Tune struct {
	Freq        float64 // target frequency, Hz
	Shift       float64 // display-only offset added to Freq
	Doppler     float64
	DopplerRate float64
}

// Filter holds the passband and bin-shift parameters the channelizer
// consumes to rebuild its passband response and IFFT plan.
type Filter struct {
	MinIF             float64
	MaxIF             float64
	KaiserBeta        float64
	BinShift          int
	Remainder         float64 // sub-bin residual; NaN forces oscillator re-init
	Filter2Blocking   int
	Filter2KaiserBeta float64
}

// NewFilter returns a Filter with Remainder primed to force oscillator
// initialization on the first block, per bin-shift policy.
func NewFilter() Filter {
	return Filter{Remainder: math.NaN()}
}

// Output holds the channel's output-side parameters.
type Output struct {
	SampleRate float64
	Channels   int     // 1 (mono) or 2 (stereo/ISB)
	Encoding   string
	DestSocket string
	MinPacket  int
	Gain       float64
	Headroom   float64
	DestTTL    int
}

// Demod holds the per-type demodulator sub-state. Only the fields for the
// active DemodType are meaningful at any time.
type Demod struct {
	Type DemodType

	// FM / WFM
	DeemphasisTau float64
	ThreshExtend  bool
	Stereo        bool
	CTCSSToneHz   float64

	// Linear/SSB/AM
	AGCEnable           bool
	AGCThresholdDB      float64
	AGCHangtime         time.Duration
	AGCRecoveryRate     float64
	AGCGainDB           float64
	Envelope            bool
	PLLEnable           bool
	PLLBW               float64
	PLLSquare           bool
	IndependentSideband bool

	// Spectrum
	BinCount         int
	NoncoherentBinBW float64
	BinPower         []float64
}

// SignalEstimators holds the shared per-channel signal-quality state.
type SignalEstimators struct {
	BasebandPower float64
	NoiseDensity  float64
	SNR           float64
	PLLPhase      float64
	PLLFreqOffset float64
	PLLLocked     bool
}

// Squelch holds the squelch machine's configuration and current state.
// A 0.0 threshold pair (OpenThreshold == 0 && CloseThreshold == 0) is the
// sentinel meaning "always open".
type Squelch struct {
	OpenThreshold  float64
	CloseThreshold float64
	SNREnable      bool
	State          SquelchState
	TailBlocks     int
	tailRemaining  int
}

// AlwaysOpen reports whether both thresholds are the sentinel zero value.
func (s Squelch) AlwaysOpen() bool {
	return s.OpenThreshold == 0 && s.CloseThreshold == 0
}

// Counters tracks per-channel packet and error accounting surfaced on
// status.
type Counters struct {
	PacketsIn     uint64
	PacketsOut    uint64
	OutputSamples uint64
	Errors        uint64
	BlockDrops    uint64
}

// Channel is the central entity: one ssrc, one worker, one set of tuning,
// filter, output, demod, and control state.
type Channel struct {
	mu sync.Mutex

	SSRC uint32

	Tune     Tune
	Filter   Filter
	Output   Output
	Demod    Demod
	Signal   SignalEstimators
	Squelch  Squelch
	Counters Counters

	// Control fields, guarded by mu.
	pendingCommand  []byte
	globalTimer     int
	outputInterval  int
	outputCountdown int
	lifetime        int
	inuse           bool
	preset          string
	lastCommandTag  uint32

	CreatedAt         time.Time
	idleTimeoutBlocks int
}

// New constructs a channel in the idle/template state (Freq == 0) with its
// lifetime primed to idleTimeoutBlocks.
func New(ssrc uint32, idleTimeoutBlocks int, now time.Time) *Channel {
	return &Channel{
		SSRC: ssrc,
		Filter: NewFilter(),
		lifetime: idleTimeoutBlocks,
		idleTimeoutBlocks: idleTimeoutBlocks,
		inuse: true,
		CreatedAt: now,
	}
}

// IsIdle reports whether the channel is the idle/template channel per
//: a channel with Freq == 0.
func (c *Channel) IsIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Tune.Freq == 0
}

// InUse reports whether the channel currently occupies its ssrc slot.
func (c *Channel) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inuse
}

// Preset returns the last-applied preset name.
func (c *Channel) Preset() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preset
}

// SetPreset records the last-applied preset name.
func (c *Channel) SetPreset(name string) {
	c.mu.Lock()
	c.preset = name
	c.mu.Unlock()
}

// SubmitCommand installs raw TLV command bytes into the channel's
// single-slot pending buffer. an occupied slot refuses
// the new command (it is dropped) rather than overwriting; the return
// value reports whether the command was accepted.
func (c *Channel) SubmitCommand(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingCommand != nil {
		return false
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	c.pendingCommand = cp
	return true
}

// TakeCommand removes and returns the pending command, if any, for the
// worker to apply at its next block boundary.
func (c *Channel) TakeCommand() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := c.pendingCommand
	c.pendingCommand = nil
	return cmd
}

// RefreshLifetime resets the idle-expiry countdown. Per 's
// lifetime rule, this must only be called for commands addressed to a
// channel whose Freq != 0 — callers are responsible for that check since
// the rule depends on state as of command arrival, not as of this call.
func (c *Channel) RefreshLifetime() {
	c.mu.Lock()
	c.lifetime = c.idleTimeoutBlocks
	c.mu.Unlock()
}

// Tick decrements the idle-expiry countdown by one block and reports
// whether the channel has just expired (lifetime reached zero).
func (c *Channel) Tick() (expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inuse {
		return false
	}
	if c.lifetime <= 0 {
		return true
	}
	c.lifetime--
	return c.lifetime <= 0
}

// Lifetime returns the current idle-expiry countdown, in blocks.
func (c *Channel) Lifetime() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifetime
}

// SetGlobalTimer sets the staggered status-broadcast countdown used by the
// broadcast (ssrc == 0xFFFFFFFF) dispatch path.
func (c *Channel) SetGlobalTimer(v int) {
	c.mu.Lock()
	c.globalTimer = v
	c.mu.Unlock()
}

// TickGlobalTimer decrements the staggered broadcast countdown and reports
// whether it has just reached zero (a status send is due).
func (c *Channel) TickGlobalTimer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.globalTimer <= 0 {
		return false
	}
	c.globalTimer--
	return c.globalTimer == 0
}

// MarkTorndown releases the channel's ssrc slot. The registry still holds
// the pointer until it prunes it from its index.
func (c *Channel) MarkTorndown() {
	c.mu.Lock()
	c.inuse = false
	c.mu.Unlock()
}

// SetOutputInterval sets the block interval at which the status emitter
// sends an unsolicited STATUS packet for this channel,
// and arms the countdown so the new interval takes effect from now.
func (c *Channel) SetOutputInterval(blocks int) {
	c.mu.Lock()
	c.outputInterval = blocks
	c.outputCountdown = blocks
	c.mu.Unlock()
}

// OutputInterval returns the configured status-send interval in blocks.
func (c *Channel) OutputInterval() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputInterval
}

// TickOutputInterval decrements the periodic status-send countdown and
// reports whether it has just reached zero, re-arming it from
// outputInterval. A channel with no configured interval never fires.
func (c *Channel) TickOutputInterval() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outputInterval <= 0 {
		return false
	}
	c.outputCountdown--
	if c.outputCountdown <= 0 {
		c.outputCountdown = c.outputInterval
		return true
	}
	return false
}

// SetLastCommandTag records the COMMAND_TAG of the most recently applied
// command, echoed back on the STATUS reply so a client can match requests
// to responses.
func (c *Channel) SetLastCommandTag(tag uint32) {
	c.mu.Lock()
	c.lastCommandTag = tag
	c.mu.Unlock()
}

// LastCommandTag returns the most recently applied COMMAND_TAG.
func (c *Channel) LastCommandTag() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommandTag
}
