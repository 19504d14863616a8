package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestApplyDefaults_NetworkAndPool(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8014, cfg.Port)
	assert.Equal(t, 16, cfg.ConcurrencyLimit)
}

func TestApplyDefaults_SQLiteProfile(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.NotEmpty(t, cfg.SQLite.JournalMode)
	assert.NotEmpty(t, cfg.SQLite.Synchronous)
	assert.NotEmpty(t, cfg.SQLite.TempStore)
	assert.NotZero(t, cfg.SQLite.CacheSize)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Root: "/data",
		Port: 9999,
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/s3lite.log",
		},
		ShutdownTimeout: 60 * time.Second,
	}

	ApplyDefaults(cfg)

	assert.Equal(t, "/data", cfg.Root)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/log/s3lite.log", cfg.Logging.Output)
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeout)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotEmpty(t, cfg.Logging.Level)
	assert.NotZero(t, cfg.Port)
	assert.True(t, cfg.PermissiveCORS)
}
