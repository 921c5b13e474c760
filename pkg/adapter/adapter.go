package adapter

import (
	"context"
)

// Adapter represents a protocol server managed by server.Server.
//
// Each adapter owns its listeners and connections and exposes a uniform
// lifecycle so the server can start and stop several of them together.
//
// Lifecycle:
//  1. Creation: the adapter is built with its configuration and dependencies
//  2. Startup: Serve() binds and accepts, blocking until shutdown
//  3. Shutdown: context cancellation or Stop() drains connections
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must:
	//   - Stop accepting new connections
	//   - Wait for active connections to complete (with timeout)
	//   - Clean up resources
	//
	// Returns nil on graceful shutdown. A return before cancellation is
	// treated as fatal and stops every other adapter.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown.
	//
	// Implementations must be idempotent, safe to call concurrently with
	// Serve(), and respect the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
