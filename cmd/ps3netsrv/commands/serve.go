package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/pkg/config"
	"github.com/marmos91/ps3netsrv/pkg/server"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured folder (default command)",
		Long: `Serve the configured folder until interrupted.

SIGINT or SIGTERM stops accepting connections and waits up to the shutdown
timeout for active clients before exiting.

Examples:
  ps3netsrv serve -F /srv/ps3
  PS3NETSRV_LOGGING_LEVEL=DEBUG ps3netsrv serve --config ./config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := config.LoadWithFlags(opts.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ps3netsrv starting", "version", Version, "commit", Commit)
	logger.Info("Configuration loaded", "source", configSource(opts.configFile))

	return serve(ctx, cfg, afero.NewOsFs())
}

// serve builds every component from cfg and blocks until ctx is cancelled
// or a component fails.
func serve(ctx context.Context, cfg *config.Config, fs afero.Fs) error {
	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, fs, metricsResult.NetisoMetrics)
	if err != nil {
		return err
	}

	srv := server.New(metricsResult.Server, cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	nc := cfg.Adapters.Netiso
	logger.Info("Serving folder",
		logger.KeyRoot, cfg.Server.Root,
		logger.KeyPort, nc.Port,
		"read_only", cfg.Server.ReadOnly,
		"max_connections", nc.MaxConnections,
		"filter", nc.Filter.Mode,
		"addresses", strings.Join(nc.Filter.Addresses, ","))

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("ps3netsrv stopped")
	return nil
}
