package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittobtt/internal/bytesize"
)

// Default geometry and transfer settings.
const (
	DefaultLBASize     = 512
	DefaultLanes       = 256
	DefaultNFree       = 256
	DefaultStoreSize   = 64 * bytesize.MiB
	DefaultPartSize    = 8 * bytesize.MiB
	DefaultConcurrency = 4
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.API.ApplyDefaults()
	applyDeviceDefaults(&cfg.Device)
	applyStoreDefaults(&cfg.Store)
	applySnapshotDefaults(&cfg.Snapshot)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if cfg.LockSampleRate == 0 {
		cfg.LockSampleRate = 5
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_space",
			"inuse_space",
			"goroutines",
			"mutex_duration",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.LBASize == 0 {
		cfg.LBASize = DefaultLBASize
	}
	if cfg.Lanes == 0 {
		cfg.Lanes = DefaultLanes
	}
	if cfg.NFree == 0 {
		cfg.NFree = DefaultNFree
	}
}

// applyStoreDefaults defaults to a memory store. Size is left at zero for
// file-backed types so an existing file keeps its extent.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = StoreTypeMemory
	}
	cfg.Type = strings.ToLower(cfg.Type)
	if cfg.Type == StoreTypeMemory && cfg.Size == 0 {
		cfg.Size = DefaultStoreSize
	}
}

func applySnapshotDefaults(cfg *SnapshotConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// The device UUID is left empty; "config init" fills it in.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
