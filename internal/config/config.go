// Package config provides dynamic configuration management for PicoRelay.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for PicoRelay.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	Port       int    `mapstructure:"port"`
	DBDriver   string `mapstructure:"db_driver"` // "sqlite"
	DBPath     string `mapstructure:"db_path"`

	// ── Live state ────────────────────────────────────────────────────────────
	// LiveTTLSeconds: silence window after which a device drops out of the
	// live set. LiveSweepSeconds: period of the background eviction sweep.
	LiveTTLSeconds   int `mapstructure:"live_ttl_seconds"`
	LiveSweepSeconds int `mapstructure:"sweep_interval_seconds"`
	// LiveBufferMax bounds the in-memory ring of recent readings served by
	// /api/data.
	LiveBufferMax int `mapstructure:"live_buffer_max"`

	// ── Agent ────────────────────────────────────────────────────────────────
	AgentJoinAddr string `mapstructure:"agent_join_addr"`
	AgentDeviceID string `mapstructure:"agent_device_id"` // empty = hostname
	AgentInterval int    `mapstructure:"agent_interval_seconds"`
}

// LiveTTL returns the presence TTL as a duration.
func (c *Config) LiveTTL() time.Duration {
	return time.Duration(c.LiveTTLSeconds) * time.Second
}

// SweepInterval returns the sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.LiveSweepSeconds) * time.Second
}

// Load reads config from file (./config.yaml or ~/.picorelay/config.yaml)
// and falls back to smart defaults. Environment variables with prefix PICO_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_path", "picorelay.db")

	v.SetDefault("live_ttl_seconds", 60)
	v.SetDefault("sweep_interval_seconds", 30)
	v.SetDefault("live_buffer_max", 100)

	v.SetDefault("agent_join_addr", "127.0.0.1:8080")
	v.SetDefault("agent_device_id", "")
	v.SetDefault("agent_interval_seconds", 15)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.picorelay")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("PICO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values the server cannot start with. There is no
// degraded storage-less mode, so an empty db_path fails here rather than
// at first write.
func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.LiveTTLSeconds <= 0 {
		return fmt.Errorf("live_ttl_seconds must be positive, got %d", c.LiveTTLSeconds)
	}
	if c.LiveSweepSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive, got %d", c.LiveSweepSeconds)
	}
	if c.LiveBufferMax <= 0 {
		return fmt.Errorf("live_buffer_max must be positive, got %d", c.LiveBufferMax)
	}
	return nil
}
