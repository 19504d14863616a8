// Package config loads the s3lite process configuration from a YAML file,
// CLI flags, and defaults, in that precedence order (CLI wins over file,
// file wins over defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/s3lite/s3lite/internal/bytesize"
	"github.com/s3lite/s3lite/pkg/pragma"
)

// Config is the top-level s3lite configuration document (§6).
type Config struct {
	// Root is the directory scanned for *.sqlite3 bucket files.
	Root string `mapstructure:"root" yaml:"root"`

	// Host and Port are the HTTP listen address.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	// AccessKey/SecretKey enable SigV4 verification of inbound requests
	// when both are set. Required together.
	AccessKey string `mapstructure:"access_key" validate:"required_with=SecretKey" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" validate:"required_with=AccessKey" yaml:"secret_key,omitempty"`

	// ConcurrencyLimit bounds both the per-pool reader count and the
	// inbound-request concurrency cap.
	ConcurrencyLimit int `mapstructure:"concurrency_limit" validate:"min=1" yaml:"concurrency_limit"`

	// PermissiveCORS enables a wide-open CORS policy on the HTTP server.
	PermissiveCORS bool `mapstructure:"permissive_cors" yaml:"permissive_cors"`

	// DomainName, when set, enables virtual-hosted-style bucket parsing
	// (bucket.DomainName/key instead of /bucket/key).
	DomainName string `mapstructure:"domain_name" yaml:"domain_name,omitempty"`

	// ReadOnly puts every bucket, and the registry itself, into read-only
	// mode: no CreateBucket/DeleteBucket/PutObject/DeleteObject/multipart.
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// SQLite carries the global pragma profile defaults (§4.1).
	SQLite pragma.Profile `mapstructure:"sqlite" yaml:"sqlite"`

	// Buckets maps bucket name to its optional per-bucket overrides. Every
	// key must correspond to an existing *.sqlite3 file at startup.
	Buckets map[string]BucketConfig `mapstructure:"buckets" yaml:"buckets,omitempty"`

	// Logging and Telemetry are carried over from the ambient stack,
	// unchanged in shape from the teacher.
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds graceful HTTP shutdown (§5: "waits up to 10s").
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// BucketConfig is one entry of the `buckets` config section: an optional
// read-only override plus pragma overrides for a single bucket.
type BucketConfig struct {
	ReadOnly *bool            `mapstructure:"read_only" yaml:"read_only,omitempty"`
	Pragma   *pragma.Override `mapstructure:"pragma" yaml:",inline,omitempty"`
}

// LoggingConfig controls logging behavior. Unchanged in shape from the
// teacher.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. Unchanged in
// shape from the teacher.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling. Unchanged in
// shape from the teacher.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. Unchanged
// in shape from the teacher.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from a file (if found) and defaults.
// v carries CLI flags already bound by the caller, so that BindPFlags
// values win over the file when both are set.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	setupViper(v, configPath)
	// permissive_cors defaults to true; seeded into viper itself (rather
	// than via ApplyDefaults) so an explicit `permissive_cors: false` in
	// the file or a bound --permissive-cors=false flag is distinguishable
	// from "unset" despite both being the bool zero value.
	v.SetDefault("permissive_cors", true)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if the
// explicit configPath does not exist. An empty configPath is not an
// error: s3lite runs from defaults when no file is given.
func MustLoad(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file or omit --config to run with defaults",
				configPath)
		}
	}
	return Load(v, configPath)
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper's environment variable and config file
// search behavior.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("S3LITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if present. A missing file
// is not an error; the caller falls back to defaults.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom mapstructure decode hooks applied
// during Unmarshal.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers into
// internal/bytesize.ByteSize, so pragma.cache_size accepts human-readable
// sizes like "64Mi" in addition to plain byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers into time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	val := validator.New()
	if err := val.Struct(cfg); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return err
		}
		var msgs []string
		for _, fe := range err.(validator.ValidationErrors) {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	if err := cfg.SQLite.Validate(); err != nil {
		return err
	}
	return nil
}

// getConfigDir returns the configuration directory, preferring
// XDG_CONFIG_HOME, falling back to ~/.config, then ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "s3lite")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "s3lite")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir exposes the configuration directory for the init command.
func GetConfigDir() string {
	return getConfigDir()
}
