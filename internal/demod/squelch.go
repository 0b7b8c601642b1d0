// Package demod implements the demodulator engines (NBFM, WFM,
// Linear/SSB/AM, Spectrum) and their shared signal-quality primitives:
// squelch, AGC, PLL, and de-emphasis.
package demod

// SquelchState is the OPEN/CLOSING/CLOSED machine.
type SquelchState int

const (
	Closed SquelchState = iota
	Closing
	Open
)

func (s SquelchState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Closing:
		return "closing"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Squelch implements the per-block OPEN/CLOSING/CLOSED state machine. Its
// hysteresis is a fixed tail-block countdown rather than a vote count: once
// the metric drops below CloseThreshold the machine stays CLOSING for
// TailBlocks further blocks and then closes, reopening at once if the
// metric reaches OpenThreshold meanwhile.
type Squelch struct {
	OpenThreshold  float64
	CloseThreshold float64
	TailBlocks     int

	state         SquelchState
	tailRemaining int
}

// NewSquelch builds a squelch machine starting CLOSED.
func NewSquelch(openThreshold, closeThreshold float64, tailBlocks int) *Squelch {
	return &Squelch{
		OpenThreshold: openThreshold,
		CloseThreshold: closeThreshold,
		TailBlocks: tailBlocks,
		state: Closed,
	}
}

// AlwaysOpen reports the sentinel: both thresholds zero means
// squelch is unconditionally open and preset overrides are bypassed.
func (s *Squelch) AlwaysOpen() bool {
	return s.OpenThreshold == 0 && s.CloseThreshold == 0
}

// State returns the current squelch state.
func (s *Squelch) State() SquelchState { return s.state }

// Update advances the squelch machine by one block given the current
// signal-quality metric (SNR, power ratio, or tone-detector deviation,
// whichever the caller has selected).
func (s *Squelch) Update(metric float64) SquelchState {
	if s.AlwaysOpen() {
		s.state = Open
		return s.state
	}

	switch s.state {
	case Closed:
		if metric >= s.OpenThreshold {
			s.state = Open
		}
	case Open:
		if metric < s.CloseThreshold {
			s.state = Closing
			s.tailRemaining = s.TailBlocks
		}
	case Closing:
		if metric >= s.OpenThreshold {
			s.state = Open
			s.tailRemaining = 0
			break
		}
		if s.tailRemaining <= 0 {
			s.state = Closed
			break
		}
		s.tailRemaining--
	}
	return s.state
}

// Muted reports whether output should be silenced this block.
func (s *Squelch) Muted() bool {
	return s.state == Closed
}
