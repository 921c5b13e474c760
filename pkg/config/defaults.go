package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/ps3netsrv/pkg/adapter/netiso"
)

// DefaultMetricsPort is the port of the /metrics endpoint.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Enumerations are normalized to uppercase
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdaptersDefaults(&cfg.Adapters, cfg.Server.ShutdownTimeout)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Root == "" {
		cfg.Root = defaultRoot()
	}
	cfg.Root = filepath.Clean(cfg.Root)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// defaultRoot is the working directory, or "." if it cannot be determined.
func defaultRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig, shutdownTimeout time.Duration) {
	// A config without an adapters section still serves: the netiso
	// adapter is the only protocol, so it is enabled unless the section
	// sets a port and leaves enabled false.
	if !cfg.Netiso.Enabled && cfg.Netiso.Port == 0 {
		cfg.Netiso.Enabled = true
	}

	applyNetisoDefaults(&cfg.Netiso, shutdownTimeout)
}

// applyNetisoDefaults sets netiso adapter defaults.
func applyNetisoDefaults(cfg *netiso.NetisoConfig, shutdownTimeout time.Duration) {
	if cfg.Port == 0 {
		cfg.Port = netiso.DefaultPort
	}

	// MaxConnections defaults to 0 (unlimited)
	// IdleTimeout defaults to 0: consoles stay connected while a game runs

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = shutdownTimeout
	}

	cfg.Filter.Mode = strings.ToUpper(strings.TrimSpace(cfg.Filter.Mode))
	cfg.Filter.Addresses = splitAddresses(cfg.Filter.Addresses)

	cfg.ApplyDefaults()
}

// splitAddresses trims entries and splits comma-joined ones, so the legacy
// "-I a,b" form and a YAML list end up the same.
func splitAddresses(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, a := range strings.Split(entry, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Netiso: netiso.NetisoConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
