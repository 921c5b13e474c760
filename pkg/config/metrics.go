package config

import (
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	promMetrics "github.com/marmos91/ps3netsrv/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// NetisoMetrics is the collector for the netiso adapter (never nil, uses noop if disabled)
	NetisoMetrics metrics.NetisoMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed collectors
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			NetisoMetrics: metrics.NewNoopNetisoMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Address: cfg.Metrics.Address,
		Port:    cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		NetisoMetrics: promMetrics.NewNetisoMetrics(),
	}
}
