// Command radiod is the demodulation daemon: it owns the frontend, the
// master FFT stage, the channel registry, the per-channel workers, and the
// control/status socket, wiring them together the way cmd/monopulse wires a
// backend, a tracker, and a telemetry reporter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rjboer/godemod/internal/channel"
	"github.com/rjboer/godemod/internal/config"
	"github.com/rjboer/godemod/internal/control"
	"github.com/rjboer/godemod/internal/diag"
	"github.com/rjboer/godemod/internal/frontend"
	"github.com/rjboer/godemod/internal/frontend/mock"
	"github.com/rjboer/godemod/internal/frontend/pluto"
	"github.com/rjboer/godemod/internal/logging"
	"github.com/rjboer/godemod/internal/master"
	"github.com/rjboer/godemod/internal/mdns"
	"github.com/rjboer/godemod/internal/ring"
	"github.com/rjboer/godemod/internal/worker"
)

func main() {
	const configPath = "radiod.json"

	persistentCfg, err := loadOrCreateConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persistentCfg)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		log.Fatalf("save config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		log.Fatalf("log format: %v", err)
	}
	logger := logging.New(level, format, os.Stderr)
	logging.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	device, err := selectFrontend(cfg, logger)
	if err != nil {
		log.Fatalf("select frontend: %v", err)
	}
	store := config.New(frontendConfigMap(cfg))
	desc, err := device.Setup(ctx, storeToMap(store))
	if err != nil {
		log.Fatalf("frontend setup: %v", err)
	}
	logger.Info("frontend ready", logging.Field{Key: "sample_rate_hz", Value: desc.SampleRate}, logging.Field{Key: "complex", Value: desc.Complex})

	input := ring.New(cfg.ringCapacity, ring.Complex)
	if err := device.Start(ctx, input); err != nil {
		log.Fatalf("frontend start: %v", err)
	}

	stage := master.New(input, cfg.blockSize, cfg.impulseLength, desc.Complex, logger)
	go stage.Run(ctx)

	registry := channel.NewRegistry(cfg.idleTimeoutBlocks, logger)

	var presets *control.Presets
	if cfg.presetPath != "" {
		raw, err := os.ReadFile(cfg.presetPath)
		if err != nil {
			log.Fatalf("read preset manifest: %v", err)
		}
		presets, err = control.LoadPresets(raw)
		if err != nil {
			log.Fatalf("load preset manifest: %v", err)
		}
	}

	hub := diag.NewHub(cfg.diagHistoryLimit)
	var reporters diag.MultiReporter
	reporters = append(reporters, hub)
	if cfg.diagStdout {
		reporters = append(reporters, diag.NewStdoutReporter(logger))
	}
	if cfg.diagWebAddr != "" {
		go diag.NewWebServer(cfg.diagWebAddr, hub, logger).Start(ctx)
		logger.Info("diagnostics web interface", logging.Field{Key: "addr", Value: cfg.diagWebAddr})
	}

	manager := worker.NewManager(stage, func() frontend.Descriptor { return desc }, device.Gain, device.Atten, logger)

	var server *control.Server
	sendStatus := func(ch *channel.Channel) {
		reporters.Report(ch)
		if server == nil {
			return
		}
		fe := control.FrontendSnapshot{SampleRate: desc.SampleRate, FirstLO: desc.CenterFreq}
		packet := control.BuildStatus(ch, fe, stage.BlockSize(), stage.NFFT())
		addr, err := controlGroupAddr(cfg.controlAddr)
		if err != nil {
			logger.Warn("status send failed", logging.Field{Key: "error", Value: err})
			return
		}
		if err := server.WriteToGroup(packet, addr); err != nil {
			logger.Warn("status send failed", logging.Field{Key: "error", Value: err})
		}
	}
	dispatcher := control.NewDispatcher(registry, presets, cfg.dataDest, manager.Hooks(sendStatus), logger)
	manager.SetDispatcher(dispatcher)

	server, err = control.NewServer(control.ListenConfig{Addr: cfg.controlAddr, Iface: cfg.controlIface}, dispatcher, logger)
	if err != nil {
		log.Fatalf("control server: %v", err)
	}

	emitter := control.NewEmitter(registry, blockPeriod(desc.SampleRate, cfg.blockSize), sendStatus, logger)
	go emitter.Run(ctx)

	if cfg.mdnsAdvertise {
		_, port, perr := splitPort(cfg.controlAddr)
		if perr == nil {
			srv, aerr := mdns.Advertise(cfg.mdnsInstance, port, nil)
			if aerr != nil {
				logger.Warn("mdns advertise failed", logging.Field{Key: "error", Value: aerr})
			} else {
				defer srv.Shutdown()
			}
		}
	}

	go idleReaper(ctx, registry, manager, blockPeriod(desc.SampleRate, cfg.blockSize), logger)

	logger.Info("radiod ready", logging.Field{Key: "control_addr", Value: cfg.controlAddr})
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("control server stopped", logging.Field{Key: "error", Value: err})
	}
	manager.Stop()
	_ = device.Close()
}

// idleReaper ticks the registry's idle-expiry countdown once per block period
// and tears down any worker whose channel just expired.
func idleReaper(ctx context.Context, registry *channel.Registry, manager *worker.Manager, period time.Duration, log logging.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ssrc := range registry.Tick() {
				manager.Remove(ssrc)
				log.Info("worker torn down on idle expiry", logging.Field{Key: "ssrc", Value: ssrc})
			}
		}
	}
}

func blockPeriod(sampleRate float64, blockSize int) time.Duration {
	if sampleRate <= 0 || blockSize <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(float64(blockSize) / sampleRate * float64(time.Second))
}

func controlGroupAddr(addr string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", addr)
}

func splitPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}

func selectFrontend(cfg cliConfig, logger logging.Logger) (frontend.Device, error) {
	switch cfg.backend {
	case "mock":
		return mock.New(logger), nil
	case "pluto":
		return pluto.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown frontend backend %q", cfg.backend)
	}
}

func frontendConfigMap(cfg cliConfig) map[string]string {
	return map[string]string{
		"uri": cfg.frontendURI,
		"sample_rate_hz": strconv.FormatFloat(cfg.sampleRate, 'f', -1, 64),
		"center_freq_hz": strconv.FormatFloat(cfg.centerFreq, 'f', -1, 64),
		"rx_lo_hz": strconv.FormatFloat(cfg.centerFreq, 'f', -1, 64),
		"rx_gain_db": strconv.FormatFloat(cfg.rxGainDB, 'f', -1, 64),
		"block_size": strconv.Itoa(cfg.blockSize),
		"tone_offset_hz": strconv.FormatFloat(cfg.mockToneOffset, 'f', -1, 64),
		"noise_sigma": strconv.FormatFloat(cfg.mockNoiseSigma, 'f', -1, 64),
	}
}

func storeToMap(s config.Store) map[string]string {
	// frontend.Device.Setup takes a plain map ; config.Store
	// itself only wraps one for typed lookups elsewhere, so the daemon
	// hands the backend the raw map it built.
	out := map[string]string{}
	for _, key := range []string{"uri", "sample_rate_hz", "center_freq_hz", "rx_lo_hz", "rx_gain_db", "block_size", "tone_offset_hz", "noise_sigma"} {
		if v := s.String(key, ""); v != "" {
			out[key] = v
		}
	}
	return out
}

type cliConfig struct {
	backend           string
	frontendURI       string
	sampleRate        float64
	centerFreq        float64
	rxGainDB          float64
	blockSize         int
	impulseLength     int
	ringCapacity      int
	idleTimeoutBlocks int
	mockToneOffset    float64
	mockNoiseSigma    float64

	controlAddr  string
	controlIface string
	dataDest     string
	presetPath   string

	diagHistoryLimit int
	diagStdout       bool
	diagWebAddr      string

	mdnsAdvertise bool
	mdnsInstance  string

	logLevel  string
	logFormat string
}

type persistentConfig struct {
	Backend           string `json:"backend"`
	FrontendURI       string `json:"frontend_uri"`
	SampleRate        float64 `json:"sample_rate_hz"`
	CenterFreq        float64 `json:"center_freq_hz"`
	RxGainDB          float64 `json:"rx_gain_db"`
	BlockSize         int `json:"block_size"`
	ImpulseLength     int `json:"impulse_length"`
	RingCapacity      int `json:"ring_capacity"`
	IdleTimeoutBlocks int `json:"idle_timeout_blocks"`
	MockToneOffset    float64 `json:"mock_tone_offset_hz"`
	MockNoiseSigma    float64 `json:"mock_noise_sigma"`
	ControlAddr       string `json:"control_addr"`
	ControlIface      string `json:"control_iface"`
	DataDest          string `json:"data_dest"`
	PresetPath        string `json:"preset_path"`
	DiagHistoryLimit  int `json:"diag_history_limit"`
	DiagStdout        bool `json:"diag_stdout"`
	DiagWebAddr       string `json:"diag_web_addr"`
	MDNSAdvertise     bool `json:"mdns_advertise"`
	MDNSInstance      string `json:"mdns_instance"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("radiod", flag.ContinueOnError)
	fs.StringVar(&cfg.backend, "backend", envString(lookup, "RADIOD_BACKEND", defaults.Backend), "Frontend backend (mock|pluto)")
	fs.StringVar(&cfg.frontendURI, "frontend-uri", envString(lookup, "RADIOD_FRONTEND_URI", defaults.FrontendURI), "Frontend connection URI (pluto backend)")
	fs.Float64Var(&cfg.sampleRate, "sample-rate", envFloat(lookup, "RADIOD_SAMPLE_RATE", defaults.SampleRate), "Frontend sample rate in Hz")
	fs.Float64Var(&cfg.centerFreq, "center-freq", envFloat(lookup, "RADIOD_CENTER_FREQ", defaults.CenterFreq), "Frontend center frequency in Hz")
	fs.Float64Var(&cfg.rxGainDB, "rx-gain", envFloat(lookup, "RADIOD_RX_GAIN", defaults.RxGainDB), "Frontend RX gain in dB")
	fs.IntVar(&cfg.blockSize, "block-size", envInt(lookup, "RADIOD_BLOCK_SIZE", defaults.BlockSize), "Master FFT stage block size in samples")
	fs.IntVar(&cfg.impulseLength, "impulse-length", envInt(lookup, "RADIOD_IMPULSE_LENGTH", defaults.ImpulseLength), "Longest channelizer passband filter length")
	fs.IntVar(&cfg.ringCapacity, "ring-capacity", envInt(lookup, "RADIOD_RING_CAPACITY", defaults.RingCapacity), "Input ring buffer capacity in samples")
	fs.IntVar(&cfg.idleTimeoutBlocks, "idle-timeout-blocks", envInt(lookup, "RADIOD_IDLE_TIMEOUT_BLOCKS", defaults.IdleTimeoutBlocks), "Channel idle expiry, in blocks")
	fs.Float64Var(&cfg.mockToneOffset, "mock-tone-offset", envFloat(lookup, "RADIOD_MOCK_TONE_OFFSET", defaults.MockToneOffset), "Mock frontend synthetic tone offset in Hz")
	fs.Float64Var(&cfg.mockNoiseSigma, "mock-noise-sigma", envFloat(lookup, "RADIOD_MOCK_NOISE_SIGMA", defaults.MockNoiseSigma), "Mock frontend synthetic noise sigma")
	fs.StringVar(&cfg.controlAddr, "control-addr", envString(lookup, "RADIOD_CONTROL_ADDR", defaults.ControlAddr), "Control/status multicast socket, host:port")
	fs.StringVar(&cfg.controlIface, "control-iface", envString(lookup, "RADIOD_CONTROL_IFACE", defaults.ControlIface), "Interface for the control multicast group")
	fs.StringVar(&cfg.dataDest, "data-dest", envString(lookup, "RADIOD_DATA_DEST", defaults.DataDest), "Default per-channel PCM output destination, host:port")
	fs.StringVar(&cfg.presetPath, "preset-manifest", envString(lookup, "RADIOD_PRESET_MANIFEST", defaults.PresetPath), "Path to the preset XML manifest")
	fs.IntVar(&cfg.diagHistoryLimit, "diag-history-limit", envInt(lookup, "RADIOD_DIAG_HISTORY_LIMIT", defaults.DiagHistoryLimit), "Diagnostics snapshot history length per channel")
	fs.BoolVar(&cfg.diagStdout, "diag-stdout", envBool(lookup, "RADIOD_DIAG_STDOUT", defaults.DiagStdout), "Also log each channel status snapshot")
	fs.StringVar(&cfg.diagWebAddr, "diag-web-addr", envString(lookup, "RADIOD_DIAG_WEB_ADDR", defaults.DiagWebAddr), "Optional diagnostics web listen address, e.g.:8080")
	fs.BoolVar(&cfg.mdnsAdvertise, "mdns-advertise", envBool(lookup, "RADIOD_MDNS_ADVERTISE", defaults.MDNSAdvertise), "Advertise the control endpoint via mDNS")
	fs.StringVar(&cfg.mdnsInstance, "mdns-instance", envString(lookup, "RADIOD_MDNS_INSTANCE", defaults.MDNSInstance), "mDNS instance name")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "RADIOD_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "RADIOD_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		Backend: cfg.backend,
		FrontendURI: cfg.frontendURI,
		SampleRate: cfg.sampleRate,
		CenterFreq: cfg.centerFreq,
		RxGainDB: cfg.rxGainDB,
		BlockSize: cfg.blockSize,
		ImpulseLength: cfg.impulseLength,
		RingCapacity: cfg.ringCapacity,
		IdleTimeoutBlocks: cfg.idleTimeoutBlocks,
		MockToneOffset: cfg.mockToneOffset,
		MockNoiseSigma: cfg.mockNoiseSigma,
		ControlAddr: cfg.controlAddr,
		ControlIface: cfg.controlIface,
		DataDest: cfg.dataDest,
		PresetPath: cfg.presetPath,
		DiagHistoryLimit: cfg.diagHistoryLimit,
		DiagStdout: cfg.diagStdout,
		DiagWebAddr: cfg.diagWebAddr,
		MDNSAdvertise: cfg.mdnsAdvertise,
		MDNSInstance: cfg.mdnsInstance,
		LogLevel: cfg.logLevel,
		LogFormat: cfg.logFormat,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	var cfg persistentConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		Backend: "mock",
		SampleRate: 2_000_000,
		CenterFreq: 100_000_000,
		RxGainDB: 40,
		BlockSize: 4096,
		ImpulseLength: 1025,
		RingCapacity: 1 << 20,
		IdleTimeoutBlocks: 300,
		MockToneOffset: 25_000,
		MockNoiseSigma: 1e-4,
		ControlAddr: "239.1.2.3:5006",
		DataDest: "127.0.0.1:5010",
		DiagHistoryLimit: 500,
		DiagWebAddr: ":8080",
		MDNSInstance: "radiod",
		LogLevel: "info",
		LogFormat: "text",
	}
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
