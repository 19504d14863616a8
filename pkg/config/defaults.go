package config

import (
	"strings"
	"time"

	"github.com/s3lite/s3lite/pkg/pragma"
)

const (
	defaultRoot             = "."
	defaultHost             = "0.0.0.0"
	defaultPort             = 8014
	defaultConcurrencyLimit = 16
	defaultShutdownTimeout  = 10 * time.Second
)

// GetDefaultConfig returns a Config populated entirely with defaults: no
// file, no CLI flags, no environment.
func GetDefaultConfig() *Config {
	cfg := &Config{PermissiveCORS: true}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields of cfg with their documented
// defaults (§4.1, §6). Explicit values already set by file/CLI/env are
// preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = defaultRoot
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	applySQLiteDefaults(&cfg.SQLite)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// applySQLiteDefaults fills the pragma profile with the package-level
// defaults from pkg/pragma for any field left at its zero value.
func applySQLiteDefaults(p *pragma.Profile) {
	if p.JournalMode == "" {
		p.JournalMode = pragma.DefaultJournalMode
	}
	if p.Synchronous == "" {
		p.Synchronous = pragma.DefaultSynchronous
	}
	if p.TempStore == "" {
		p.TempStore = pragma.DefaultTempStore
	}
	if p.CacheSize == 0 {
		p.CacheSize = pragma.DefaultCacheSize
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}
