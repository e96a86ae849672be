package config

import (
	"strings"
	"testing"

	"github.com/marmos91/dittobtt/internal/bytesize"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Logging.Level") {
		t.Errorf("Expected field name in error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate > 1")
	}
}

func TestValidate_InvalidProfileType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown profile type")
	}
}

func TestValidate_Device(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DeviceConfig)
		wantErr bool
	}{
		{"valid uuid", func(d *DeviceConfig) { d.UUID = "6f1c8e0a-7c64-4a43-9a7e-2d1f6b0c9a11" }, false},
		{"bad uuid", func(d *DeviceConfig) { d.UUID = "not-a-uuid" }, true},
		{"small lba", func(d *DeviceConfig) { d.LBASize = 256 }, true},
		{"nfree too large", func(d *DeviceConfig) { d.NFree = 1 << 17 }, true},
		{"minimum nfree", func(d *DeviceConfig) { d.NFree = 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg.Device)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreConfig
		wantErr bool
	}{
		{"memory", StoreConfig{Type: "memory", Size: 16 * bytesize.MiB}, false},
		{"memory without size", StoreConfig{Type: "memory"}, true},
		{"file without path", StoreConfig{Type: "file", Size: 16 * bytesize.MiB}, true},
		{"file", StoreConfig{Type: "file", Path: "/tmp/a.img"}, false},
		{"unaligned size", StoreConfig{Type: "file", Path: "/tmp/a.img", Size: 4097}, true},
		{"unknown type", StoreConfig{Type: "nvme", Path: "/dev/nvme0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Store = tt.store
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_SnapshotPartSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Snapshot.PartSize = 5*bytesize.MiB + 1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unaligned part size")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "Logging.Format") || !strings.Contains(err.Error(), "API.Port") {
		t.Errorf("Expected both problems reported, got: %v", err)
	}
}
