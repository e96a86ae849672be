//go:build !linux && !darwin

package config

import (
	"fmt"
	"runtime"

	"github.com/marmos91/dittobtt/pkg/store"
)

func openMmapStore(StoreConfig, bool) (store.Store, error) {
	return nil, fmt.Errorf("mmap store is not supported on %s", runtime.GOOS)
}
