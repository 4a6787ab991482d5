package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("default port %d, want 8080", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "picorelay.db" {
		t.Fatalf("unexpected db defaults: %s/%s", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.LiveTTLSeconds != 60 || cfg.LiveSweepSeconds != 30 || cfg.LiveBufferMax != 100 {
		t.Fatalf("unexpected live defaults: ttl=%d sweep=%d ring=%d",
			cfg.LiveTTLSeconds, cfg.LiveSweepSeconds, cfg.LiveBufferMax)
	}
	if cfg.AgentInterval != 15 {
		t.Fatalf("default agent interval %d, want 15", cfg.AgentInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PICO_PORT", "9000")
	t.Setenv("PICO_LIVE_TTL_SECONDS", "120")
	t.Setenv("PICO_AGENT_DEVICE_ID", "pico-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9000 {
		t.Fatalf("env override port %d, want 9000", cfg.Port)
	}
	if cfg.LiveTTLSeconds != 120 {
		t.Fatalf("env override ttl %d, want 120", cfg.LiveTTLSeconds)
	}
	if cfg.AgentDeviceID != "pico-test" {
		t.Fatalf("env override device id %q", cfg.AgentDeviceID)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PICO_LIVE_TTL_SECONDS":       "0",
		"PICO_SWEEP_INTERVAL_SECONDS": "-5",
		"PICO_LIVE_BUFFER_MAX":        "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%q", key, val)
			}
		})
	}
}
