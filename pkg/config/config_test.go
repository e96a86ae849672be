package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittobtt/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FileStore(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
logging:
  level: "debug"

device:
  uuid: "6f1c8e0a-7c64-4a43-9a7e-2d1f6b0c9a11"
  lba_size: 4096

store:
  type: file
  path: "`+yamlSafePath(dir)+`/pmem.img"
  size: 64Mi
  sync_writes: true

api:
  port: 9000
  read_timeout: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Device.LBASize != 4096 {
		t.Errorf("Expected lba_size 4096, got %d", cfg.Device.LBASize)
	}
	if cfg.Device.NFree != DefaultNFree {
		t.Errorf("Expected default nfree %d, got %d", DefaultNFree, cfg.Device.NFree)
	}
	if cfg.Store.Type != StoreTypeFile {
		t.Errorf("Expected store type 'file', got %q", cfg.Store.Type)
	}
	if cfg.Store.Size != 64*bytesize.MiB {
		t.Errorf("Expected store size 64Mi, got %s", cfg.Store.Size)
	}
	if !cfg.Store.SyncWrites {
		t.Error("Expected sync_writes to be true")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("Expected API port 9000, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.API.WriteTimeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Store.Type != StoreTypeMemory {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Store.Type)
	}
	if cfg.Store.Size != DefaultStoreSize {
		t.Errorf("Expected default memory size %s, got %s", DefaultStoreSize, cfg.Store.Size)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  type: memory
  size: 16Mi
`)

	t.Setenv("DITTOBTT_STORE_SIZE", "32Mi")
	t.Setenv("DITTOBTT_DEVICE_UUID", "6f1c8e0a-7c64-4a43-9a7e-2d1f6b0c9a11")
	t.Setenv("DITTOBTT_DEVICE_READ_ONLY", "true")
	t.Setenv("DITTOBTT_SNAPSHOT_BUCKET", "backups")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.Size != 32*bytesize.MiB {
		t.Errorf("Expected env override size 32Mi, got %s", cfg.Store.Size)
	}
	if cfg.Device.UUID != "6f1c8e0a-7c64-4a43-9a7e-2d1f6b0c9a11" {
		t.Errorf("Expected env override uuid, got %q", cfg.Device.UUID)
	}
	if !cfg.Device.ReadOnly {
		t.Error("Expected env override read_only=true")
	}
	if cfg.Snapshot.Bucket != "backups" {
		t.Errorf("Expected env override bucket 'backups', got %q", cfg.Snapshot.Bucket)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "store: [unterminated\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestLoad_InvalidByteSize(t *testing.T) {
	path := writeConfig(t, `
store:
  type: memory
  size: "lots"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for unparseable size")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Device.UUID = NewDeviceUUID()
	cfg.Store = StoreConfig{Type: StoreTypeBadger, Path: "/var/lib/dittobtt", Size: 256 * bytesize.MiB}
	cfg.Snapshot.Bucket = "backups"
	cfg.Snapshot.Endpoint = "http://localhost:9000"
	cfg.Snapshot.ForcePathStyle = true

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved config not found: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Device.UUID != cfg.Device.UUID {
		t.Errorf("UUID mismatch: %q vs %q", loaded.Device.UUID, cfg.Device.UUID)
	}
	if loaded.Store != cfg.Store {
		t.Errorf("Store mismatch: %+v vs %+v", loaded.Store, cfg.Store)
	}
	if loaded.Snapshot != cfg.Snapshot {
		t.Errorf("Snapshot mismatch: %+v vs %+v", loaded.Snapshot, cfg.Snapshot)
	}
}

func TestGetDefaultConfigPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "dittobtt", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in empty XDG dir")
	}
	if _, err := MustLoad(""); err == nil {
		t.Error("Expected MustLoad to fail without a default config")
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	if _, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing explicit config")
	}
}
