package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/pkg/adapter"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
)

// DefaultStopTimeout bounds the Stop() call issued to each adapter.
const DefaultStopTimeout = 30 * time.Second

var (
	// ErrNoAdapters is returned by Serve when nothing was registered.
	ErrNoAdapters = errors.New("no adapters registered")

	// ErrAlreadyServed is returned by a second Serve call and by
	// AddAdapter once serving started.
	ErrAlreadyServed = errors.New("server already started")

	errAdapterExited = errors.New("adapter stopped unexpectedly")
)

// Server runs a set of protocol adapters, plus the optional metrics
// endpoint, as one unit.
//
// Lifecycle:
//  1. Creation: New() with an optional metrics server
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: context cancellation, or the failure of any component,
//     stops every adapter in reverse registration order
//
// Thread safety:
// AddAdapter() may be called concurrently with other methods. Serve()
// runs at most once.
type Server struct {
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	// mu protects adapters and served
	mu       sync.Mutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a server with no adapters. Register them with AddAdapter
// before calling Serve.
//
// Parameters:
//   - metricsServer: optional Prometheus endpoint (nil when metrics are off)
//   - stopTimeout: bound on stopping every adapter; a non-positive value
//     uses DefaultStopTimeout
func New(metricsServer *metrics.Server, stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		metricsServer: metricsServer,
		stopTimeout:   stopTimeout,
	}
}

// AddAdapter registers a protocol adapter.
//
// Each adapter must implement a different protocol and listen on a
// different port; duplicates are rejected. Adapters with port 0 pick an
// ephemeral port and never conflict.
//
// Panics if a is nil.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return ErrAlreadyServed
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}
	if s.metricsServer != nil && port != 0 && s.metricsServer.Port() == port {
		return fmt.Errorf("port %d already in use by the metrics server", port)
	}

	s.adapters = append(s.adapters, a)

	logger.Debug("Registered adapter", logger.KeyProtocol, protocol, logger.KeyPort, port)
	return nil
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]adapter.Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}

// Serve starts every adapter and the metrics server, and blocks until ctx
// is cancelled or one of them fails.
//
// Shutdown stops the adapters in reverse registration order, all within
// one stop timeout. The metrics server stops with them.
//
// Parameters:
//   - ctx: controls the server lifecycle. Cancellation triggers shutdown.
//
// Returns:
//   - nil when shutdown was triggered by ctx
//   - ErrNoAdapters or ErrAlreadyServed for misuse
//   - the first failure otherwise, after every other component has been
//     stopped; an adapter returning before shutdown counts as a failure
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return ErrNoAdapters
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server", logger.KeyCount, len(adapters))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		a := a // per-iteration copy (go directive predates Go 1.22 loop semantics)
		g.Go(func() error {
			protocol := a.Protocol()
			err := a.Serve(gctx)
			switch {
			case err != nil:
				logger.Error("Adapter failed", logger.KeyProtocol, protocol, logger.KeyError, err)
				return fmt.Errorf("%s adapter: %w", protocol, err)
			case gctx.Err() == nil:
				return fmt.Errorf("%s adapter: %w", protocol, errAdapterExited)
			default:
				logger.Debug("Adapter stopped", logger.KeyProtocol, protocol)
				return nil
			}
		})
	}

	if s.metricsServer != nil {
		g.Go(func() error {
			return s.metricsServer.Start(gctx)
		})
	}

	// Issues Stop() once anything ends the group.
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("Shutdown signal received", logger.KeyReason, context.Cause(ctx))
		}
		s.stopAll(adapters)
		return nil
	})

	err := g.Wait()

	logger.Info("Server stopped", logger.KeyDurationMs, logger.Duration(start))

	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopAll stops adapters in reverse registration order, logging failures
// and continuing with the rest.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping adapter", logger.KeyProtocol, a.Protocol(), logger.KeyError, err)
		}
	}
}
