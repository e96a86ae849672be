// Package metrics exposes the metric interfaces used by the BTT core and the
// snapshot layer, plus the process-wide Prometheus registry they report to.
//
// Metrics are opt-in. Until InitRegistry is called every constructor returns
// nil, and every helper in this package treats a nil recorder as a no-op, so
// instrumented code pays nothing when metrics are disabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the registry and registers the Go runtime and
// process collectors. Calling it more than once returns the existing
// registry.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return registry
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// resetRegistry drops the registry. Tests only.
func resetRegistry() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}
