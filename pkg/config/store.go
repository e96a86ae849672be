package config

import (
	"fmt"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/store"
	"github.com/marmos91/dittobtt/pkg/store/badger"
	"github.com/marmos91/dittobtt/pkg/store/file"
	"github.com/marmos91/dittobtt/pkg/store/memory"
)

// Store types accepted in StoreConfig.Type.
const (
	StoreTypeMemory = "memory"
	StoreTypeFile   = "file"
	StoreTypeMmap   = "mmap"
	StoreTypeBadger = "badger"
)

// OpenStore creates the backing store described by cfg. readOnly opens
// file and mmap stores without write access.
func OpenStore(cfg StoreConfig, readOnly bool) (store.Store, error) {
	logger.Debug("opening store",
		logger.KeyStoreType, cfg.Type,
		logger.KeyPath, cfg.Path,
		logger.KeySize, cfg.Size.Uint64(),
	)

	switch cfg.Type {
	case StoreTypeMemory, "":
		if cfg.Size == 0 {
			return nil, fmt.Errorf("memory store requires a size")
		}
		return memory.New(cfg.Size.Uint64()), nil
	case StoreTypeFile:
		fcfg := file.DefaultConfig(cfg.Path, cfg.Size.Uint64())
		fcfg.SyncWrites = cfg.SyncWrites
		fcfg.ReadOnly = readOnly
		return file.New(fcfg)
	case StoreTypeMmap:
		return openMmapStore(cfg, readOnly)
	case StoreTypeBadger:
		return badger.New(badger.Config{
			Path:       cfg.Path,
			Size:       cfg.Size.Uint64(),
			SyncWrites: cfg.SyncWrites,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
