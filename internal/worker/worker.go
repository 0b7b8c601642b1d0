// Package worker runs the per-channel pipeline: wait for the next master
// FFT block, apply any pending command at the block boundary, channelize
// and demodulate, and ship PCM to the channel's data socket. It is kept
// out of internal/channel because it depends on internal/control (which
// itself depends on internal/channel) and on every demod engine — putting
// it in internal/channel would create an import cycle.
//
// Grounded on internal/sdr.MockSDR streaming goroutine (a
// condvar-driven producer/consumer loop) and internal/app.TrackManager's
// per-track goroutine lifecycle (start on creation, cancel on teardown),
// generalized from "one goroutine per tracked target" to "one goroutine per
// channel".
package worker

import (
	"context"
	"math"
	"net"
	"sync"

	"github.com/rjboer/godemod/internal/channel"
	"github.com/rjboer/godemod/internal/channelizer"
	"github.com/rjboer/godemod/internal/control"
	"github.com/rjboer/godemod/internal/demod"
	"github.com/rjboer/godemod/internal/frontend"
	"github.com/rjboer/godemod/internal/logging"
	"github.com/rjboer/godemod/internal/master"
)

// Manager owns the running worker goroutines, one per active channel, and
// exposes the control.Hooks a Dispatcher needs to start, restart, and
// rebuild them without importing this package back.
type Manager struct {
	mu      sync.Mutex
	workers map[uint32]*runningWorker

	stage      *master.Stage
	descriptor func() frontend.Descriptor
	dispatcher *control.Dispatcher
	log        logging.Logger

	frontendGain  func(db float64) error
	frontendAtten func(db float64) error
}

type runningWorker struct {
	cancel context.CancelFunc
	w      *Worker
}

// NewManager builds a worker manager. descriptor is called once per worker
// start/restart so a frontend retune between channel creations is picked
// up; frontendGain/frontendAtten back the RF_GAIN/RF_ATTEN hooks.
func NewManager(stage *master.Stage, descriptor func() frontend.Descriptor, frontendGain, frontendAtten func(db float64) error, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		workers: make(map[uint32]*runningWorker),
		stage: stage,
		descriptor: descriptor,
		frontendGain: frontendGain,
		frontendAtten: frontendAtten,
		log: logging.Subsystem(log, "worker.manager"),
	}
}

// SetDispatcher wires the dispatcher whose DrainPending each worker calls
// at its block boundary. Dispatcher and Manager are constructed in a cycle
// (Dispatcher needs Manager's hooks; Manager's workers need the
// Dispatcher), so this is set once after both exist.
func (m *Manager) SetDispatcher(d *control.Dispatcher) {
	m.mu.Lock()
	m.dispatcher = d
	m.mu.Unlock()
}

// Hooks returns the control.Hooks bound to this manager, aside from
// SendStatus which the caller supplies separately since only it knows how
// to reach the status socket.
func (m *Manager) Hooks(sendStatus func(ch *channel.Channel)) control.Hooks {
	return control.Hooks{
		StartWorker: m.start,
		Restart: m.restart,
		RebuildFilter: m.rebuildFilter,
		RebuildSpectrum: m.rebuildSpectrum,
		SendStatus: sendStatus,
		SetFrontendGain: m.frontendGain,
		SetFrontendAtten: m.frontendAtten,
	}
}

func (m *Manager) start(ch *channel.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workers[ch.SSRC]; exists {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := New(ch, m.stage, m.descriptor(), m.dispatcher, m.log)
	m.workers[ch.SSRC] = &runningWorker{cancel: cancel, w: w}
	go w.Run(ctx)
}

func (m *Manager) restart(ch *channel.Channel) {
	m.mu.Lock()
	if existing, ok := m.workers[ch.SSRC]; ok {
		existing.cancel()
		delete(m.workers, ch.SSRC)
	}
	m.mu.Unlock()
	m.start(ch)
}

func (m *Manager) rebuildFilter(ch *channel.Channel) {
	m.mu.Lock()
	existing, ok := m.workers[ch.SSRC]
	m.mu.Unlock()
	if !ok {
		return
	}
	existing.w.rebuild(ch)
}

func (m *Manager) rebuildSpectrum(ch *channel.Channel) {
	m.mu.Lock()
	existing, ok := m.workers[ch.SSRC]
	m.mu.Unlock()
	if !ok {
		return
	}
	existing.w.rebuildSpectrum(ch)
}

// Stop cancels every running worker, e.g. on daemon shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ssrc, rw := range m.workers {
		rw.cancel()
		delete(m.workers, ssrc)
	}
}

// Remove tears down and forgets a channel's worker, e.g. after idle
// expiry removes it from the registry.
func (m *Manager) Remove(ssrc uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rw, ok := m.workers[ssrc]; ok {
		rw.cancel()
		delete(m.workers, ssrc)
	}
}

// Worker drives one channel's channelize-demodulate-output loop against a
// shared master FFT stage.
type Worker struct {
	ch         *channel.Channel
	stage      *master.Stage
	desc       frontend.Descriptor
	dispatcher *control.Dispatcher
	log        logging.Logger

	mu sync.Mutex
	cz *channelizer.Channelizer

	linear *demod.Linear
	fm     *demod.FM
	wfm    *demod.WFM
	spec   *demod.Spectrum

	lastSeq uint64
	conn    net.Conn
}

// New builds a Worker for ch, snapshotting its current tuning/demod state
// into freshly built engines. Callers (Manager.start/restart) own ensuring
// only one Worker runs per channel at a time.
func New(ch *channel.Channel, stage *master.Stage, desc frontend.Descriptor, dispatcher *control.Dispatcher, log logging.Logger) *Worker {
	w := &Worker{
		ch: ch,
		stage: stage,
		desc: desc,
		dispatcher: dispatcher,
		log: logging.Subsystem(log, "worker").With(logging.Field{Key: "ssrc", Value: ch.SSRC}),
	}
	w.buildEngines()
	w.buildChannelizer()
	return w
}

func (w *Worker) buildChannelizer() {
	width, _ := w.geometry()
	beta := w.ch.Filter.KaiserBeta
	outputBlock := width
	if w.ch.Output.MinPacket > 0 && w.ch.Output.MinPacket < width {
		outputBlock = w.ch.Output.MinPacket
	}
	w.cz = channelizer.New(w.desc.Complex, w.stage.NFFT(), width, outputBlock, beta)
}

func (w *Worker) buildEngines() {
	const tailBlocks = 3
	sq := demod.NewSquelch(w.ch.Squelch.OpenThreshold, w.ch.Squelch.CloseThreshold, tailBlocks)

	sampleRate := w.ch.Output.SampleRate
	if sampleRate <= 0 {
		sampleRate = w.desc.SampleRate
	}

	switch w.ch.Demod.Type {
	case channel.FM:
		deviation := w.ch.Filter.MaxIF - w.ch.Filter.MinIF
		if deviation <= 0 {
			deviation = 5000
		}
		w.fm = demod.NewFM(sampleRate, deviation, w.ch.Demod.DeemphasisTau, w.ch.Demod.CTCSSToneHz, 0.05, sq)
	case channel.WFM:
		deviation := w.ch.Filter.MaxIF - w.ch.Filter.MinIF
		if deviation <= 0 {
			deviation = 75000
		}
		w.wfm = demod.NewWFM(sampleRate, deviation, w.ch.Demod.DeemphasisTau, w.ch.Demod.Stereo, sq)
	case channel.Spectrum:
		w.spec = demod.NewSpectrum(w.ch.Demod.BinCount, w.ch.Demod.NoncoherentBinBW, 0.2)
	default: // Linear
		var agc *demod.AGC
		if w.ch.Demod.AGCEnable {
			blockRate := w.desc.SampleRate / float64(w.stage.BlockSize())
			threshold := math.Pow(10, w.ch.Demod.AGCThresholdDB/20)
			headroom := w.ch.Output.Headroom
			if headroom <= 0 {
				headroom = 1
			}
			agc = demod.NewAGC(threshold, headroom, w.ch.Demod.AGCRecoveryRate, w.ch.Demod.AGCHangtime.Seconds(), blockRate)
			agc.Enable = true
		}
		var pll *demod.PLL
		if w.ch.Demod.PLLEnable {
			pll = demod.NewPLL(w.ch.Demod.PLLBW, w.ch.Demod.PLLSquare)
		}
		w.linear = demod.NewLinear(w.ch.Demod.Envelope, agc, pll, sq)
	}
}

// rebuild reconstructs the channelizer's passband/plan after a
// filter-affecting command, without tearing down the
// worker goroutine.
func (w *Worker) rebuild(ch *channel.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	width, _ := w.geometry()
	outputBlock := width
	if ch.Output.MinPacket > 0 && ch.Output.MinPacket < width {
		outputBlock = ch.Output.MinPacket
	}
	w.cz.Rebuild(width, outputBlock, ch.Filter.KaiserBeta)
}

// rebuildSpectrum resizes the spectrum engine's bin buffer after a
// BIN_COUNT/NONCOHERENT_BIN_BW command, without tearing down the worker
// goroutine. It is a no-op for non-Spectrum channels.
func (w *Worker) rebuildSpectrum(ch *channel.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.spec == nil {
		return
	}
	w.spec.Reallocate(ch.Demod.BinCount, ch.Demod.NoncoherentBinBW)
}

// geometry computes W = output_samprate * N_fft / frontend_samprate per
//, defaulting output_samprate to the channel's passband width
// when unset.
func (w *Worker) geometry() (width int, binBW float64) {
	nfft := w.stage.NFFT()
	binBW = w.desc.SampleRate / float64(nfft)
	sampleRate := w.ch.Output.SampleRate
	if sampleRate <= 0 {
		passband := w.ch.Filter.MaxIF - w.ch.Filter.MinIF
		if passband <= 0 {
			passband = w.desc.SampleRate / 8
		}
		sampleRate = passband
	}
	width = int(sampleRate*float64(nfft)/w.desc.SampleRate + 0.5)
	if width < 1 {
		width = 1
	}
	if width > nfft {
		width = nfft
	}
	return width, binBW
}

// binShiftAndRemainder implements bin-shift policy: the
// integer bin nearest the channel's IF offset from the frontend's center
// frequency, plus the sub-bin residual for the fine mixer.
func binShiftAndRemainder(targetFreq, centerFreq, binBW float64) (shift int, remainder float64) {
	if binBW <= 0 {
		return 0, math.NaN()
	}
	offset := targetFreq - centerFreq
	shiftF := math.Round(offset / binBW)
	return int(shiftF), offset - shiftF*binBW
}

// Run drives the block loop until ctx is cancelled or the master stage
// closes.
func (w *Worker) Run(ctx context.Context) {
	defer w.closeConn()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, open := w.stage.Wait(w.lastSeq)
		if !open {
			return
		}
		if w.lastSeq != 0 && block.Seq > w.lastSeq+1 {
			w.ch.Counters.BlockDrops += block.Seq - w.lastSeq - 1
		}
		w.lastSeq = block.Seq

		if w.dispatcher != nil {
			w.dispatcher.DrainPending(w.ch)
		}

		w.processBlock(block.Bins)
	}
}

func (w *Worker) processBlock(masterBins []complex128) {
	w.mu.Lock()
	cz := w.cz
	w.mu.Unlock()

	_, binBW := w.geometry()
	shift, remainder := binShiftAndRemainder(w.ch.Tune.Freq, w.desc.CenterFreq, binBW)
	w.ch.Filter.BinShift = shift
	w.ch.Filter.Remainder = remainder

	sampleRate := w.ch.Output.SampleRate
	if sampleRate <= 0 {
		sampleRate = w.desc.SampleRate
	}

	if w.ch.Demod.Type == channel.Spectrum {
		w.processSpectrum(masterBins, shift)
		return
	}

	samples := cz.Process(masterBins, shift, remainder, sampleRate, w.ch.Tune.Doppler, w.ch.Tune.DopplerRate)

	switch w.ch.Demod.Type {
	case channel.FM:
		audio, _, freqOffset, snrDB, open := w.fm.Process(samples)
		w.ch.Squelch.State = squelchState(w.fm.Squelch.State())
		w.ch.Signal.PLLFreqOffset = freqOffset
		w.ch.Signal.SNR = snrDB
		if open {
			w.sendPCM(mono16(audio))
		}
	case channel.WFM:
		left, right, _, freqOffset, snrDB := w.wfm.Process(samples)
		w.ch.Squelch.State = squelchState(w.wfm.Squelch.State())
		w.ch.Signal.PLLFreqOffset = freqOffset
		w.ch.Signal.SNR = snrDB
		w.sendPCM(interleave16(left, right))
	default:
		audio, snr, pllLocked, pllPhase, agcGainDB := w.linear.Process(samples)
		w.ch.Signal.SNR = snr
		w.ch.Signal.PLLLocked = pllLocked
		w.ch.Signal.PLLPhase = pllPhase
		w.ch.Demod.AGCGainDB = agcGainDB
		w.ch.Squelch.State = squelchState(w.linear.Squelch.State())
		w.sendPCM(mono16(audio))
	}
	w.ch.Counters.OutputSamples += uint64(len(samples))
}

func (w *Worker) processSpectrum(masterBins []complex128, shift int) {
	var binData []float64
	inputBins := demod.InputBinCount(w.spec.BinCount, w.spec.BinBW, w.stage.NFFT(), w.desc.SampleRate)
	if !w.desc.Complex && abs(shift)-inputBins/2 <= 0 && abs(shift)+inputBins/2 >= len(masterBins)-1 {
		binData = w.spec.ProcessRealFullCoverage(masterBins)
	} else {
		binData = w.spec.ProcessComplex(extractSpectrumBins(masterBins, shift, inputBins, w.stage.NFFT(), w.desc.Complex))
	}
	w.ch.Demod.BinPower = binData
}

// extractSpectrumBins builds the ascending most-negative-to-most-positive
// slice a Spectrum engine expects, centered on shift. Complex frontends
// spectrally wrap negative bin indices around nfft, the same convention
// channelizer.Extract uses; real frontends zero-pad out-of-range bins.
func extractSpectrumBins(masterBins []complex128, shift, width, nfft int, complexInput bool) []complex128 {
	out := make([]complex128, width)
	start := shift - width/2
	nBins := len(masterBins)
	for k := 0; k < width; k++ {
		idx := start + k
		if complexInput {
			if idx < 0 {
				idx += nfft
			}
		}
		if idx >= 0 && idx < nBins {
			out[k] = masterBins[idx]
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func squelchState(s demod.SquelchState) channel.SquelchState {
	switch s {
	case demod.Open:
		return channel.SquelchOpen
	case demod.Closing:
		return channel.SquelchClosing
	default:
		return channel.SquelchClosed
	}
}

func mono16(audio []float64) []byte {
	out := make([]byte, 2*len(audio))
	for i, v := range audio {
		s := clampInt16(v)
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

func interleave16(left, right []float64) []byte {
	n := len(left)
	out := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		l := clampInt16(left[i])
		r := clampInt16(right[i])
		out[4*i] = byte(l)
		out[4*i+1] = byte(l >> 8)
		out[4*i+2] = byte(r)
		out[4*i+3] = byte(r >> 8)
	}
	return out
}

func clampInt16(v float64) int16 {
	scaled := v * 32767
	if scaled > 32767 {
		scaled = 32767
	} else if scaled < -32768 {
		scaled = -32768
	}
	return int16(scaled)
}

func (w *Worker) sendPCM(payload []byte) {
	if len(payload) == 0 {
		return
	}
	if w.conn == nil {
		if w.ch.Output.DestSocket == "" {
			return
		}
		conn, err := net.Dial("udp", w.ch.Output.DestSocket)
		if err != nil {
			w.log.Warn("dial data socket failed", logging.Field{Key: "error", Value: err})
			w.ch.Counters.Errors++
			return
		}
		w.conn = conn
	}
	if _, err := w.conn.Write(payload); err != nil {
		w.log.Warn("write data socket failed", logging.Field{Key: "error", Value: err})
		w.ch.Counters.Errors++
		return
	}
	w.ch.Counters.PacketsOut++
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		_ = w.conn.Close()
	}
}
