package control

import (
	"testing"
	"time"

	"github.com/rjboer/godemod/internal/channel"
)

func TestBuildStatusEncodesCommonAndDemodSpecificFields(t *testing.T) {
	ch := channel.New(555, 10, time.Now())
	ch.Tune.Freq = 14074000
	ch.Demod.Type = channel.FM
	ch.Signal.SNR = 12.5
	ch.Filter.MinIF = -1500
	ch.Filter.MaxIF = 1500
	ch.SetLastCommandTag(99)

	fe := FrontendSnapshot{SampleRate: 12000000, IFPower: -30, Overranges: 2, FirstLO: 14000000}
	packet := BuildStatus(ch, fe, 4096, 1024)

	if packet[0] != PacketStatus {
		t.Fatalf("expected status packet type byte, got %#x", packet[0])
	}
	tlvs, err := Parse(packet[1:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	ssrc, ok := Find(tlvs, OUTPUT_SSRC)
	if !ok || DecodeInt32(ssrc) != 555 {
		t.Fatalf("expected OUTPUT_SSRC=555, got %v", ssrc)
	}
	tag, ok := Find(tlvs, COMMAND_TAG)
	if !ok || DecodeInt32(tag) != 99 {
		t.Fatalf("expected COMMAND_TAG echo of 99, got %v", tag)
	}
	freq, ok := Find(tlvs, RADIO_FREQUENCY)
	if !ok || DecodeFloat64(freq) != 14074000 {
		t.Fatalf("expected RADIO_FREQUENCY echoed, got %v", freq)
	}
	lowEdge, ok := Find(tlvs, LOW_EDGE)
	if !ok || DecodeFloat64(lowEdge) != -1500 {
		t.Fatalf("expected LOW_EDGE=-1500, got %v", lowEdge)
	}
	highEdge, ok := Find(tlvs, HIGH_EDGE)
	if !ok || DecodeFloat64(highEdge) != 1500 {
		t.Fatalf("expected HIGH_EDGE=1500, got %v", highEdge)
	}
	if _, ok := Find(tlvs, SQUELCH_OPEN); !ok {
		t.Fatalf("expected SQUELCH_OPEN on every channel's status")
	}
	if _, ok := Find(tlvs, SQUELCH_CLOSE); !ok {
		t.Fatalf("expected SQUELCH_CLOSE on every channel's status")
	}
	if _, ok := Find(tlvs, FM_SNR); !ok {
		t.Fatalf("expected FM_SNR for an FM channel's status")
	}
	if _, ok := Find(tlvs, PLL_LOCKED); ok {
		t.Fatalf("did not expect PLL_LOCKED on an FM channel's status")
	}
}

func TestBuildStatusLinearChannelReportsPLLFields(t *testing.T) {
	ch := channel.New(556, 10, time.Now())
	ch.Demod.Type = channel.Linear
	ch.Signal.PLLLocked = true
	ch.Signal.PLLPhase = 0.5
	ch.Demod.PLLBW = 50
	ch.Demod.AGCGainDB = 6

	fe := FrontendSnapshot{}
	packet := BuildStatus(ch, fe, 4096, 1024)
	tlvs, err := Parse(packet[1:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := Find(tlvs, PLL_LOCKED)
	if !ok || !DecodeBool(v) {
		t.Fatalf("expected PLL_LOCKED=true for a linear channel with PLL lock")
	}
	bw, ok := Find(tlvs, PLL_BW)
	if !ok || DecodeFloat32(bw) != 50 {
		t.Fatalf("expected PLL_BW=50, got %v", bw)
	}
	gain, ok := Find(tlvs, AGC_GAIN)
	if !ok || DecodeFloat32(gain) != 6 {
		t.Fatalf("expected AGC_GAIN=6, got %v", gain)
	}
}

func TestBuildStatusEncodesSquelchAlwaysOpenAsSentinel(t *testing.T) {
	ch := channel.New(558, 10, time.Now())
	ch.Demod.Type = channel.FM
	// Zero thresholds are the internal "always open" marker.
	ch.Squelch.OpenThreshold = 0
	ch.Squelch.CloseThreshold = 0

	packet := BuildStatus(ch, FrontendSnapshot{}, 4096, 1024)
	tlvs, err := Parse(packet[1:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	open, ok := Find(tlvs, SQUELCH_OPEN)
	if !ok || DecodeFloat32(open) != squelchOpenSentinel {
		t.Fatalf("expected SQUELCH_OPEN=-999 for an always-open channel, got %v", open)
	}
	closeTag, ok := Find(tlvs, SQUELCH_CLOSE)
	if !ok || DecodeFloat32(closeTag) != squelchOpenSentinel {
		t.Fatalf("expected SQUELCH_CLOSE=-999 for an always-open channel, got %v", closeTag)
	}
}

func TestBuildStatusSpectrumChannelReportsBinVector(t *testing.T) {
	ch := channel.New(557, 10, time.Now())
	ch.Demod.Type = channel.Spectrum
	ch.Demod.BinPower = []float64{1, 2, 3, 4}

	packet := BuildStatus(ch, FrontendSnapshot{}, 4096, 1024)
	tlvs, err := Parse(packet[1:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := Find(tlvs, SPECTRUM_BIN_DATA)
	if !ok || len(v) != 8*4 {
		t.Fatalf("expected a 4-element bin power vector, got %d bytes", len(v))
	}
}

func TestEmitterFiresOnEitherClock(t *testing.T) {
	registry := channel.NewRegistry(10, nil)
	ch, err := registry.Create(1, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch.SetOutputInterval(3)
	ch.SetGlobalTimer(0)

	var sent int
	e := NewEmitter(registry, time.Millisecond, func(ch *channel.Channel) { sent++ }, nil)

	e.tick() // outputCountdown 3->2, globalTimer stays 0 (never armed)
	if sent != 0 {
		t.Fatalf("expected no status yet, got %d sends", sent)
	}
	e.tick() // 2->1
	if sent != 0 {
		t.Fatalf("expected no status yet, got %d sends", sent)
	}
	e.tick() // 1->0, re-arms to 3, due
	if sent != 1 {
		t.Fatalf("expected exactly 1 status send on the third tick, got %d", sent)
	}

	ch.SetGlobalTimer(1)
	e.tick() // globalTimer 1->0 due; outputCountdown 3->2
	if sent != 2 {
		t.Fatalf("expected the broadcast clock to also trigger a send, got %d", sent)
	}
}
