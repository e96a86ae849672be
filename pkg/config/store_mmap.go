//go:build linux || darwin

package config

import (
	"github.com/marmos91/dittobtt/pkg/store"
	"github.com/marmos91/dittobtt/pkg/store/mmap"
)

func openMmapStore(cfg StoreConfig, readOnly bool) (store.Store, error) {
	return mmap.New(mmap.Config{
		Path:       cfg.Path,
		Size:       cfg.Size.Uint64(),
		SyncWrites: cfg.SyncWrites,
		ReadOnly:   readOnly,
	})
}
