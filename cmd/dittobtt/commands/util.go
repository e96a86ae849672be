package commands

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/btt"
	"github.com/marmos91/dittobtt/pkg/config"
	"github.com/marmos91/dittobtt/pkg/metrics"
	"github.com/marmos91/dittobtt/pkg/store"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the configuration named by --config and initializes
// the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// device couples an attached BTT with the store it owns.
type device struct {
	*btt.BTT
	store store.Store
}

// Close detaches the BTT and closes the store.
func (d *device) Close() error {
	return errors.Join(d.BTT.Close(), d.store.Close())
}

// openDevice opens the configured store and attaches a BTT to it.
//
// When no device UUID is configured the store is probed, so an existing
// device can be inspected without its config. readOnly forces a read-only
// attach regardless of the config.
func openDevice(cfg *config.Config, readOnly bool) (*device, error) {
	readOnly = readOnly || cfg.Device.ReadOnly

	st, err := config.OpenStore(cfg.Store, readOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	devCfg := cfg.Device
	if devCfg.UUID == "" {
		sb, err := btt.Probe(st)
		if err != nil {
			_ = st.Close()
			if errors.Is(err, btt.ErrNotFound) {
				return nil, config.ErrNoDeviceUUID
			}
			return nil, err
		}
		devCfg.UUID = sb.UUID.String()
		devCfg.LBASize = sb.ExternalLBASize
		logger.Info("Probed device", logger.KeyUUID, devCfg.UUID, logger.KeyLBASize, devCfg.LBASize)
	}

	opts, err := devCfg.Options(metrics.NewBTTMetrics())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	opts.ReadOnly = readOnly

	b, err := btt.New(st, opts)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to attach device: %w", err)
	}
	return &device{BTT: b, store: st}, nil
}

// parseSector parses a sector argument.
func parseSector(arg string) (uint64, error) {
	var sector uint64
	if _, err := fmt.Sscan(arg, &sector); err != nil {
		return 0, fmt.Errorf("invalid sector %q", arg)
	}
	return sector, nil
}

// shortUUID keeps the first group of a UUID for confirmation prompts.
func shortUUID(id uuid.UUID) string {
	return id.String()[:8]
}
