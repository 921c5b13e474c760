package config

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/marmos91/ps3netsrv/pkg/adapter"
	"github.com/marmos91/ps3netsrv/pkg/adapter/netiso"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	"github.com/marmos91/ps3netsrv/pkg/resolver"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// The served root is opened through fs (afero.NewOsFs in production).
//
// Returns the adapters ready to be added to the server, or an error if
// none is enabled or one cannot be built.
func CreateAdapters(cfg *Config, fs afero.Fs, netisoMetrics metrics.NetisoMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Netiso.Enabled {
		a, err := netiso.New(cfg.Adapters.Netiso, netiso.Deps{
			Resolver: resolver.New(fs, cfg.Server.Root),
			ReadOnly: cfg.Server.ReadOnly,
		}, netisoMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create netiso adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
