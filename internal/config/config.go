package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server  ServerConfig
	Sched   SchedConfig
	IPC     IPCConfig
	Logging LogConfig
}

// ServerConfig holds introspection HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SchedConfig holds scheduler tuning knobs.
type SchedConfig struct {
	// TimeSliceMS overrides the default 10ms quantum for every priority
	// level. Per-level quanta remain adjustable at runtime.
	TimeSliceMS int `envconfig:"SCHED_TIME_SLICE_MS" default:"10"`
}

// IPCConfig holds IPC flow-control configuration.
type IPCConfig struct {
	// QueueLimit is the default per-channel queue limit. Capped at the
	// compile-time MAX_QUEUE_DEPTH contract value.
	QueueLimit int `envconfig:"IPC_QUEUE_LIMIT" default:"256"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sched: SchedConfig{
			TimeSliceMS: 10,
		},
		IPC: IPCConfig{
			QueueLimit: 256,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
