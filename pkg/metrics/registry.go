// Package metrics provides Prometheus metrics collection for ps3netsrv.
//
// All metrics are optional. If the registry is never initialized, components
// use no-op implementations, so the daemon runs the same with or without
// collection enabled.
//
// Usage:
//
//	// Initialize the global registry (typically in main)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	m := prometheus.NewNetisoMetrics()
//
//	// Or pass nil for no-op behavior
//	adapter := netiso.New(config, deps, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all ps3netsrv metrics.
	// Protected by registryOnce for write-once, read-many access.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times; subsequent calls are ignored.
//
// The registry also carries the Go runtime and process collectors so a
// scrape shows memory and file descriptor usage next to the netiso series.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil if
// InitRegistry() has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
