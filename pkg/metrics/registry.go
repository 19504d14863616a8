package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and installs the Prometheus
// registry used by every promauto constructor in pkg/metrics/prometheus.
// Calling it more than once replaces the registry; existing collectors
// registered against the old one are orphaned.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the active Prometheus registry, creating one on
// first use if InitRegistry was never called explicitly.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	reg := registry
	mu.RUnlock()
	if reg != nil {
		return reg
	}

	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}
