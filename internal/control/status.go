package control

import (
	"context"
	"time"

	"github.com/rjboer/godemod/internal/channel"
	"github.com/rjboer/godemod/internal/logging"
)

// FrontendSnapshot is the read-only frontend state a STATUS packet reports
// alongside per-channel fields: sample rate, IF power, overranges, and LO.
type FrontendSnapshot struct {
	SampleRate float64
	IFPower    float64
	Overranges uint32
	FirstLO    float64
}

// BuildStatus encodes a channel's full STATUS snapshot: frontend state,
// tuning, filter state, demod-specific fields, and aggregate counters.
func BuildStatus(ch *channel.Channel, fe FrontendSnapshot, blockSize, impulseLen int) []byte {
	b := NewBuilder(PacketStatus)
	b.PutInt32(OUTPUT_SSRC, ch.SSRC)
	b.PutInt32(COMMAND_TAG, ch.LastCommandTag())

	b.PutFloat64(FRONTEND_SAMPLE_RATE, fe.SampleRate)
	b.PutFloat64(FRONTEND_IF_POWER, fe.IFPower)
	b.PutInt32(FRONTEND_OVERRANGES, fe.Overranges)
	b.PutFloat64(FIRST_LO_FREQUENCY, fe.FirstLO)

	b.PutFloat64(RADIO_FREQUENCY, ch.Tune.Freq)
	b.PutFloat64(SHIFT_FREQUENCY, ch.Tune.Shift)
	b.PutFloat64(SECOND_LO_FREQUENCY, ch.Tune.Freq-fe.FirstLO)
	b.PutFloat64(LOW_EDGE, ch.Filter.MinIF)
	b.PutFloat64(HIGH_EDGE, ch.Filter.MaxIF)

	b.PutInt32(FILTER_BLOCKSIZE, uint32(blockSize))
	b.PutInt32(FILTER_IMPULSE_LEN, uint32(impulseLen))
	b.PutInt64(BLOCK_DROPS, ch.Counters.BlockDrops)

	b.PutString(PRESET, ch.Preset())
	b.PutInt32(DEMOD_TYPE, uint32(ch.Demod.Type))
	b.PutFloat32(SQUELCH_OPEN, float32(power2dB(ch.Squelch.OpenThreshold)))
	b.PutFloat32(SQUELCH_CLOSE, float32(power2dB(ch.Squelch.CloseThreshold)))

	switch ch.Demod.Type {
	case channel.FM, channel.WFM:
		b.PutFloat32(FM_DEVIATION, float32(ch.Signal.PLLFreqOffset))
		b.PutFloat32(FM_SNR, float32(ch.Signal.SNR))
	case channel.Linear:
		b.PutBool(PLL_LOCKED, ch.Signal.PLLLocked)
		b.PutFloat64(PLL_PHASE, ch.Signal.PLLPhase)
		b.PutFloat32(PLL_SNR, float32(ch.Signal.SNR))
		b.PutFloat32(PLL_BW, float32(ch.Demod.PLLBW))
		b.PutFloat32(AGC_GAIN, float32(ch.Demod.AGCGainDB))
	case channel.Spectrum:
		b.PutVectorFloat64(SPECTRUM_BIN_DATA, ch.Demod.BinPower)
	}

	b.PutInt64(PACKETS_IN, ch.Counters.PacketsIn)
	b.PutInt64(PACKETS_OUT, ch.Counters.PacketsOut)
	b.PutInt64(OUTPUT_SAMPLES, ch.Counters.OutputSamples)
	b.PutInt64(ERROR_COUNT, ch.Counters.Errors)

	return b.Bytes()
}

// Emitter cadences the two clock-driven STATUS triggers:
// the staggered broadcast countdown and each channel's own output_interval.
// The command-arrival trigger is handled directly by Dispatcher's
// hooks.SendStatus, since it fires from the dispatch path, not a clock.
type Emitter struct {
	registry   *channel.Registry
	send       func(ch *channel.Channel)
	tickPeriod time.Duration
	log        logging.Logger
}

// NewEmitter builds a status cadencer. tickPeriod is the block period the
// caller advances one "tick" per — i.e. the master FFT stage's block
// interval, since global_timer and output_interval are both denominated in
// blocks.
func NewEmitter(registry *channel.Registry, tickPeriod time.Duration, send func(ch *channel.Channel), log logging.Logger) *Emitter {
	if log == nil {
		log = logging.Default()
	}
	return &Emitter{
		registry: registry,
		send: send,
		tickPeriod: tickPeriod,
		log: logging.Subsystem(log, "control.status"),
	}
}

// Run drives the emitter's clock until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("status emitter stopped")
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Emitter) tick() {
	for _, ch := range e.registry.All() {
		// Two independent clocks can trigger a STATUS send this block:
		// the staggered broadcast countdown (armed by StaggerBroadcast)
		// and the channel's own periodic output_interval.
		broadcastDue := ch.TickGlobalTimer()
		intervalDue := ch.TickOutputInterval()
		if broadcastDue || intervalDue {
			e.send(ch)
		}
	}
}
