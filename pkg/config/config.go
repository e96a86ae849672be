package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittobtt/internal/bytesize"
	"github.com/marmos91/dittobtt/pkg/api"
)

// EnvPrefix is the prefix for environment variable overrides.
// Example: DITTOBTT_STORE_PATH=/dev/pmem0
const EnvPrefix = "DITTOBTT"

// Config represents the dittobtt configuration.
//
// It describes one BTT device: the backing store it lives on, the
// geometry used when formatting it, and the ambient services (logging,
// tracing, metrics, HTTP API, snapshots) that run alongside it.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOBTT_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the HTTP API server configuration used by "serve"
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Device configures the translation table
	Device DeviceConfig `mapstructure:"device" yaml:"device"`

	// Store selects and configures the backing store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Snapshot configures backup and restore to S3-compatible storage
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS to the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`

	// LockSampleRate samples one in N contention events for the mutex and
	// block profiles (lane and map lock waits).
	// Default: 5
	LockSampleRate int `mapstructure:"lock_sample_rate" validate:"gte=0" yaml:"lock_sample_rate"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled.
	// The /metrics endpoint is served by the API server.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DeviceConfig configures the translation table.
//
// Geometry fields (LBASize, NFree) only matter when the device is
// formatted; an existing layout is attached as recorded on media.
type DeviceConfig struct {
	// UUID identifies the device. Arenas stamped with another UUID are
	// ignored. "dittobtt config init" generates one; commands that attach a
	// device refuse to run without it.
	UUID string `mapstructure:"uuid" validate:"omitempty,uuid" yaml:"uuid"`

	// LBASize is the external sector size in bytes.
	// Default: 512
	LBASize uint32 `mapstructure:"lba_size" validate:"omitempty,gte=512" yaml:"lba_size"`

	// Lanes bounds I/O parallelism.
	// Default: 256
	Lanes uint32 `mapstructure:"lanes" validate:"omitempty,gte=1" yaml:"lanes"`

	// NFree is the number of spare blocks per arena.
	// Default: 256
	NFree uint32 `mapstructure:"nfree" validate:"omitempty,gte=1,lte=65536" yaml:"nfree"`

	// ReadOnly attaches without ever formatting or writing
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`
}

// StoreConfig selects the backing store.
type StoreConfig struct {
	// Type is one of memory, file, mmap, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory file mmap badger" yaml:"type"`

	// Path is the file, device node or badger directory.
	// Required for every type except memory.
	Path string `mapstructure:"path" validate:"required_unless=Type memory" yaml:"path,omitempty"`

	// Size is the extent size. Supports "64Mi", "1Gi", ...
	// Zero means the current size of an existing file.
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size"`

	// SyncWrites persists each write before it is acknowledged
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// SnapshotConfig configures backup and restore of the raw extent to an
// S3-compatible bucket.
type SnapshotConfig struct {
	// Bucket is the destination bucket
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Region is the AWS region (default: us-east-1)
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack, ...)
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint,omitempty"`

	// Prefix is prepended to every object key
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// ForcePathStyle uses path-style addressing (required by MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// PartSize is the size of each uploaded part
	// Default: 8Mi
	PartSize bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size"`

	// Concurrency is the number of parts transferred in parallel
	// Default: 4
	Concurrency int `mapstructure:"concurrency" validate:"omitempty,gte=1,lte=64" yaml:"concurrency"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOBTT_*)
//  2. Configuration file
//  3. Default values
//
// A missing config file is not an error: defaults are returned, with
// environment overrides applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load with a user-facing hint when the file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittobtt config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittobtt <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittobtt config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment overrides and the config file location.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindEnvKeys registers every leaf key of t with viper. AutomaticEnv alone
// only consults the environment for keys viper already knows about, so an
// override for a key absent from the file would otherwise be lost.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := range t.NumField() {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnvKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "64Mi" as well as 67108864.
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

// durationDecodeHook converts strings like "30s" to time.Duration.
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

// getConfigDir returns $XDG_CONFIG_HOME/dittobtt, ~/.config/dittobtt, or
// "." when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittobtt")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittobtt")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
