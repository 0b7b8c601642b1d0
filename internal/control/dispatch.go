package control

import (
	"fmt"
	"time"

	"github.com/rjboer/godemod/internal/channel"
	"github.com/rjboer/godemod/internal/logging"
)

// Hooks lets cmd/radiod wire the worker lifecycle and frontend RF controls
// into dispatch without control importing either the worker or frontend
// packages (they in turn depend on things upstream of control). Every field
// is optional; a nil hook is a no-op.
type Hooks struct {
	// StartWorker is called exactly once, right after a new channel is
	// created and its first command decoded.
	StartWorker func(ch *channel.Channel)
	// Restart is called when ApplyCommand reports a restart-triggering
	// change (demod type, encoding, or channel count).
	Restart func(ch *channel.Channel)
	// RebuildFilter is called when only filter-shape fields changed.
	RebuildFilter func(ch *channel.Channel)
	// RebuildSpectrum is called when BIN_COUNT or NONCOHERENT_BIN_BW
	// changed, independent of RestartRequired/FilterRebuildRequired.
	RebuildSpectrum func(ch *channel.Channel)
	// SendStatus sends an immediate STATUS reply for ch on the
	// control/status socket the moment a command arrives.
	SendStatus func(ch *channel.Channel)
	// SetFrontendGain/SetFrontendAtten apply an RF_GAIN/RF_ATTEN command
	// to the frontend hardware.
	SetFrontendGain  func(db float64) error
	SetFrontendAtten func(db float64) error
}

// Dispatcher implements dispatch algorithm over a channel
// registry and preset table.
type Dispatcher struct {
	registry    *channel.Registry
	presets     *Presets
	hooks       Hooks
	defaultDest string
	log         logging.Logger
	now         func() time.Time
}

// NewDispatcher builds a Dispatcher. defaultDataDest seeds a newly created
// channel's Output.DestSocket, "requires data socket to be
// configured in the process's global defaults".
func NewDispatcher(registry *channel.Registry, presets *Presets, defaultDataDest string, hooks Hooks, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		registry: registry,
		presets: presets,
		hooks: hooks,
		defaultDest: defaultDataDest,
		log: logging.Subsystem(log, "control.dispatch"),
		now: time.Now,
	}
}

// Handle decodes and dispatches one CMD datagram (the leading packet-type
// byte already stripped by the caller).
func (d *Dispatcher) Handle(body []byte) error {
	tlvs, err := Parse(body)
	if err != nil {
		return fmt.Errorf("control: dispatch: %w", err)
	}

	ssrcBytes, ok := Find(tlvs, OUTPUT_SSRC)
	if !ok {
		return fmt.Errorf("control: dispatch: command missing OUTPUT_SSRC")
	}
	ssrc := DecodeInt32(ssrcBytes)

	switch ssrc {
	case channel.ReservedTemplate:
		d.log.Warn("dropped command addressed to reserved ssrc 0")
		return nil
	case channel.Broadcast:
		d.registry.StaggerBroadcast()
		return nil
	}

	if ch, found := d.registry.Lookup(ssrc); found {
		if !ch.SubmitCommand(body) {
			d.log.Warn("pending-command slot occupied, command dropped", logging.Field{Key: "ssrc", Value: ssrc})
		}
		return nil
	}

	if d.defaultDest == "" {
		d.log.Warn("dropped command for unknown ssrc: no default data destination configured", logging.Field{Key: "ssrc", Value: ssrc})
		return fmt.Errorf("control: dispatch: no default data destination configured, cannot create channel for ssrc %08x", ssrc)
	}

	ch, err := d.registry.Create(ssrc, d.now())
	if err != nil {
		return fmt.Errorf("control: dispatch: %w", err)
	}
	ch.Output.DestSocket = d.defaultDest

	result := ApplyCommand(ch, tlvs, d.presets)
	d.applySideEffects(ch, result)

	if d.hooks.StartWorker != nil {
		d.hooks.StartWorker(ch)
	}
	if d.hooks.SendStatus != nil {
		d.hooks.SendStatus(ch)
	}
	return nil
}

func (d *Dispatcher) applySideEffects(ch *channel.Channel, result ApplyResult) {
	if result.RestartRequired && d.hooks.Restart != nil {
		d.hooks.Restart(ch)
	} else if result.FilterRebuildRequired && d.hooks.RebuildFilter != nil {
		d.hooks.RebuildFilter(ch)
	}
	if result.SpectrumRebuildRequired && d.hooks.RebuildSpectrum != nil {
		d.hooks.RebuildSpectrum(ch)
	}
	if result.FrontendGainDB != nil && d.hooks.SetFrontendGain != nil {
		if err := d.hooks.SetFrontendGain(*result.FrontendGainDB); err != nil {
			d.log.Warn("frontend gain request failed", logging.Field{Key: "error", Value: err})
		}
	}
	if result.FrontendAttenDB != nil && d.hooks.SetFrontendAtten != nil {
		if err := d.hooks.SetFrontendAtten(*result.FrontendAttenDB); err != nil {
			d.log.Warn("frontend atten request failed", logging.Field{Key: "error", Value: err})
		}
	}
}

// DrainPending applies a channel's single pending command, if any, on the
// worker's own goroutine at a block boundary rather than the network
// receive goroutine. It is exported for internal/worker.Worker to call
// each block.
func (d *Dispatcher) DrainPending(ch *channel.Channel) {
	raw := ch.TakeCommand()
	if raw == nil {
		return
	}
	tlvs, err := Parse(raw)
	if err != nil {
		d.log.Warn("dropped malformed pending command", logging.Field{Key: "ssrc", Value: ch.SSRC}, logging.Field{Key: "error", Value: err})
		return
	}
	result := ApplyCommand(ch, tlvs, d.presets)
	d.applySideEffects(ch, result)
	if d.hooks.SendStatus != nil {
		d.hooks.SendStatus(ch)
	}
}
