package main

import "testing"

func TestParseConfigDefaults(t *testing.T) {
	defaults := defaultPersistentConfig()
	cfg, err := parseConfig([]string{}, func(string) (string, bool) { return "", false }, defaults)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.backend != "mock" || cfg.sampleRate != 2_000_000 || cfg.blockSize != 4096 {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
}

func TestParseConfigEnvOverrides(t *testing.T) {
	env := map[string]string{
		"RADIOD_BACKEND":     "pluto",
		"RADIOD_SAMPLE_RATE": "1000000",
		"RADIOD_CONTROL_ADDR": "239.9.9.9:6000",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	defaults := defaultPersistentConfig()
	cfg, err := parseConfig([]string{"--rx-gain", "20"}, lookup, defaults)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.backend != "pluto" || cfg.sampleRate != 1_000_000 || cfg.controlAddr != "239.9.9.9:6000" || cfg.rxGainDB != 20 {
		t.Fatalf("env/flag overrides not applied: %#v", cfg)
	}
}

func TestSelectFrontendUnknownBackendErrors(t *testing.T) {
	if _, err := selectFrontend(cliConfig{backend: "unknown"}, nil); err == nil {
		t.Fatalf("expected an error for an unknown backend")
	}
}

func TestSelectFrontendMock(t *testing.T) {
	dev, err := selectFrontend(cliConfig{backend: "mock"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev == nil {
		t.Fatalf("expected a non-nil mock device")
	}
}

func TestBlockPeriodDegenerateInputsFallBack(t *testing.T) {
	if blockPeriod(0, 4096) <= 0 {
		t.Fatalf("expected a positive fallback period for a zero sample rate")
	}
	if blockPeriod(2_000_000, 0) <= 0 {
		t.Fatalf("expected a positive fallback period for a zero block size")
	}
}

func TestSplitPortParsesHostAndPort(t *testing.T) {
	host, port, err := splitPort("239.1.2.3:5006")
	if err != nil {
		t.Fatalf("splitPort: %v", err)
	}
	if host != "239.1.2.3" || port != 5006 {
		t.Fatalf("expected 239.1.2.3:5006, got %s:%d", host, port)
	}
}

func TestFrontendConfigMapCarriesSampleRate(t *testing.T) {
	m := frontendConfigMap(cliConfig{sampleRate: 2_000_000, blockSize: 4096})
	if m["sample_rate_hz"] != "2000000" {
		t.Fatalf("unexpected sample_rate_hz encoding: %q", m["sample_rate_hz"])
	}
	if m["block_size"] != "4096" {
		t.Fatalf("unexpected block_size encoding: %q", m["block_size"])
	}
}
