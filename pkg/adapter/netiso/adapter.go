package netiso

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/ps3netsrv/internal/logger"
	protocol "github.com/marmos91/ps3netsrv/internal/protocol/netiso"
	"github.com/marmos91/ps3netsrv/internal/ratelimiter"
	"github.com/marmos91/ps3netsrv/pkg/iso"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	"github.com/marmos91/ps3netsrv/pkg/resolver"
)

// DefaultPort is the port PS3 clients connect to unless configured otherwise.
const DefaultPort = 38008

// errStopped is returned by listen when Stop ran before Serve.
var errStopped = errors.New("adapter stopped")

// Rejection reasons reported to metrics and logs.
const (
	RejectFilter = "filter"
	RejectLimit  = "limit"
	RejectRate   = "rate"
)

// NetisoAdapter implements the adapter.Adapter interface for the ps3netsrv
// protocol.
//
// It owns the TCP listeners and the lifecycle of every client connection.
// Request handling itself lives in internal/protocol/netiso.
//
// Accept pipeline, in order:
//  1. address filter (NONE, ALLOWED or BLOCKED)
//  2. global and per-client accept rate limits
//  3. connection limit (MaxConnections, 0 = unlimited)
//
// A connection failing any step is closed immediately and counted as
// rejected. Accepted connections run in their own goroutine.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listeners closed (no new connections)
//  3. shutdownCtx cancelled (idle connections wake up and exit)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
type NetisoAdapter struct {
	config NetisoConfig
	deps   Deps

	filter    *AddressFilter
	limiter   *ratelimiter.RateLimiter
	perClient *ratelimiter.KeyedLimiter
	metrics   metrics.NetisoMetrics

	// mu protects listeners and boundPort
	mu        sync.Mutex
	listeners []net.Listener
	boundPort int

	// ready is closed once every listener is bound
	ready chan struct{}

	activeConns  sync.WaitGroup
	shutdownOnce sync.Once
	shutdown     chan struct{}
	connCount    atomic.Int32

	// connSemaphore holds one slot per active connection; nil when unlimited
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for forced closure
	activeConnections sync.Map
}

// Deps carries what connections need besides the adapter configuration.
type Deps struct {
	// Resolver maps client paths onto the served root and its overlays.
	Resolver *resolver.Resolver

	// ReadOnly rejects every command that changes the served tree.
	ReadOnly bool

	// ISOOptions are passed to every virtual ISO build.
	ISOOptions []iso.Option
}

// NetisoConfig holds configuration parameters for the ps3netsrv listener.
//
// Default values (applied by New if zero):
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - IdleTimeout: 0 (consoles keep the connection open while a game runs)
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m (a negative value disables it)
type NetisoConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen lists the local addresses to bind. Empty binds all interfaces.
	Listen []string `mapstructure:"listen" yaml:"listen" validate:"dive,ip"`

	// Port is the TCP port. 0 picks an ephemeral port; pkg/config turns an
	// unset port into DefaultPort before the adapter sees it.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent clients. Extra clients are
	// disconnected right after accept. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// ReadTimeout bounds reading a request payload once its header arrived.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes connections with no request for this long.
	// 0 keeps idle connections open.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits before force-closing.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the connection count log line.
	// 0 selects the 5m default and a negative value disables the line.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`

	// Filter restricts which client addresses may connect.
	Filter FilterConfig `mapstructure:"filter" yaml:"filter"`

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// FilterConfig configures the accept-time address filter.
type FilterConfig struct {
	// Mode is NONE, ALLOWED or BLOCKED.
	Mode string `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=NONE ALLOWED BLOCKED"`

	// Addresses lists IPs or CIDR ranges.
	Addresses []string `mapstructure:"addresses" yaml:"addresses" validate:"dive,ip|cidr"`
}

// RateLimitConfig throttles accepted connections. Zero rates disable a limit.
type RateLimitConfig struct {
	// ConnectionsPerSecond limits accepts across all clients.
	ConnectionsPerSecond float64 `mapstructure:"connections_per_second" yaml:"connections_per_second" validate:"min=0"`

	// Burst is the global bucket size.
	Burst int `mapstructure:"burst" yaml:"burst" validate:"min=0"`

	// PerClientPerSecond limits accepts from one client IP.
	PerClientPerSecond float64 `mapstructure:"per_client_per_second" yaml:"per_client_per_second" validate:"min=0"`

	// PerClientBurst is the per-client bucket size.
	PerClientBurst int `mapstructure:"per_client_burst" yaml:"per_client_burst" validate:"min=0"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *NetisoConfig) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.Filter.Mode == "" {
		c.Filter.Mode = string(FilterNone)
	}
}

// Validate checks the values New cannot default.
func (c *NetisoConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown_timeout %v: must be > 0", c.ShutdownTimeout)
	}
	for _, l := range c.Listen {
		if net.ParseIP(l) == nil {
			return fmt.Errorf("invalid listen address %q", l)
		}
	}
	return nil
}

// New creates a NetisoAdapter in a stopped state. Call Serve to start it.
//
// Configuration:
//   - Zero values in config are replaced with defaults (see NetisoConfig)
//   - An invalid config or address filter is returned as an error
//
// Parameters:
//   - config: listener configuration (addresses, port, limits, timeouts)
//   - deps: the resolver every connection serves from; required
//   - m: optional metrics collector (nil for no metrics)
//
// Returns a configured but not yet started NetisoAdapter, or the first
// configuration problem found.
func New(config NetisoConfig, deps Deps, m metrics.NetisoMetrics) (*NetisoAdapter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid netiso config: %w", err)
	}
	if deps.Resolver == nil {
		return nil, errors.New("invalid netiso config: resolver is required")
	}

	mode, err := ParseFilterMode(config.Filter.Mode)
	if err != nil {
		return nil, err
	}
	filter, err := NewAddressFilter(mode, config.Filter.Addresses)
	if err != nil {
		return nil, err
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	if m == nil {
		m = metrics.NewNoopNetisoMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	rl := config.RateLimit
	return &NetisoAdapter{
		config:         config,
		deps:           deps,
		filter:         filter,
		limiter:        ratelimiter.New(rl.ConnectionsPerSecond, rl.Burst),
		perClient:      ratelimiter.NewKeyed(rl.PerClientPerSecond, rl.PerClientBurst, 10*time.Minute),
		metrics:        m,
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// Serve binds the listeners and accepts connections until the context is
// cancelled or Stop is called.
//
// Every accepted connection passes the address filter, the rate limits and
// the connection limit before a goroutine is started for it. Rejected
// connections are closed immediately and counted by reason.
//
// Parameters:
//   - ctx: controls the adapter lifecycle. Cancellation triggers graceful
//     shutdown.
//
// Returns:
//   - nil when every connection finished within ShutdownTimeout
//   - error if a listener could not be bound or connections had to be
//     force-closed
//
// Thread safety:
// Serve should only be called once per NetisoAdapter instance.
func (s *NetisoAdapter) Serve(ctx context.Context) error {
	listeners, err := s.listen()
	if errors.Is(err, errStopped) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Server listening",
		logger.KeyListen, s.listenAddrs(),
		logger.KeyRoot, s.deps.Resolver.Root(),
		"read_only", s.deps.ReadOnly,
		"max_connections", s.config.MaxConnections,
		"filter", s.filter.String())
	logger.Debug("Server timeouts",
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
		"idle_timeout", s.config.IdleTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received", logger.KeyReason, ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	var accepting sync.WaitGroup
	for _, l := range listeners {
		accepting.Add(1)
		go func(l net.Listener) {
			defer accepting.Done()
			s.acceptLoop(l)
		}(l)
	}
	accepting.Wait()

	return s.gracefulShutdown()
}

// listen binds every configured address. With port 0 the first listener
// picks the port and the others reuse it.
func (s *NetisoAdapter) listen() ([]net.Listener, error) {
	hosts := s.config.Listen
	if len(hosts) == 0 {
		hosts = []string{""}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.shutdown:
		return nil, errStopped
	default:
	}

	port := s.config.Port
	for _, host := range hosts {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			for _, bound := range s.listeners {
				_ = bound.Close()
			}
			s.listeners = nil
			return nil, fmt.Errorf("failed to listen on %s port %d: %w", host, port, err)
		}
		if tcp, ok := l.Addr().(*net.TCPAddr); ok && port == 0 {
			port = tcp.Port
		}
		s.listeners = append(s.listeners, l)
	}
	s.boundPort = port
	close(s.ready)

	return append([]net.Listener(nil), s.listeners...), nil
}

func (s *NetisoAdapter) listenAddrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, len(s.listeners))
	for i, l := range s.listeners {
		addrs[i] = l.Addr().String()
	}
	return addrs
}

// acceptLoop accepts on one listener until it is closed.
func (s *NetisoAdapter) acceptLoop(l net.Listener) {
	for {
		tcpConn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Error accepting connection", logger.KeyError, err)
			continue
		}
		s.handleAccepted(tcpConn)
	}
}

// handleAccepted runs the accept pipeline for one connection and, if it
// passes, serves it in a new goroutine.
func (s *NetisoAdapter) handleAccepted(tcpConn net.Conn) {
	remote := tcpConn.RemoteAddr()
	clientIP := remote.String()
	if ip, ok := remoteIP(remote); ok {
		clientIP = ip.String()
	}

	if !s.filter.AllowsConn(remote) {
		s.reject(tcpConn, clientIP, RejectFilter)
		return
	}
	if !s.limiter.Allow() || !s.perClient.Allow(clientIP) {
		s.reject(tcpConn, clientIP, RejectRate)
		return
	}
	if s.connSemaphore != nil {
		select {
		case s.connSemaphore <- struct{}{}:
		default:
			s.reject(tcpConn, clientIP, RejectLimit)
			return
		}
	}

	connID := uuid.NewString()
	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(connID, tcpConn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	log := logger.With(logger.KeyConnID, connID, logger.KeyClientIP, clientIP)
	log.Info("Client connected", logger.KeyClientAddr, remote.String(), logger.KeyActive, current)

	conn := protocol.NewConn(tcpConn, protocol.ConnConfig{
		Resolver:   s.deps.Resolver,
		ReadOnly:   s.deps.ReadOnly,
		ISOOptions: s.deps.ISOOptions,
		Metrics:    s.metrics,
		Logger:     log,
		Timeouts: protocol.Timeouts{
			Read:  s.config.ReadTimeout,
			Write: s.config.WriteTimeout,
			Idle:  s.config.IdleTimeout,
		},
	})

	go func() {
		defer func() {
			s.activeConnections.Delete(connID)
			current := s.connCount.Add(-1)
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(current)

			log.Info("Client disconnected", logger.KeyActive, current)
			s.activeConns.Done()
		}()

		if err := conn.Serve(s.shutdownCtx); err != nil {
			log.Debug("Connection ended with error", logger.KeyError, err)
		}
	}()
}

func (s *NetisoAdapter) reject(c net.Conn, clientIP, reason string) {
	_ = c.Close()
	s.metrics.RecordConnectionRejected(reason)
	logger.Info("Connection rejected",
		logger.KeyClientIP, clientIP,
		logger.KeyReason, reason)
}

// initiateShutdown closes the listeners and cancels in-flight requests.
// Safe to call multiple times.
func (s *NetisoAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		for _, l := range s.listeners {
			if err := l.Close(); err != nil {
				logger.Debug("Error closing listener", logger.KeyError, err)
			}
		}
		s.mu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for active connections and
// force-closes the rest.
func (s *NetisoAdapter) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for active connections",
		logger.KeyActive, active,
		"timeout", s.config.ShutdownTimeout)

	select {
	case <-s.waitConns():
		logger.Info("Graceful shutdown complete")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded, forcing closure",
			logger.KeyActive, remaining,
			"timeout", s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *NetisoAdapter) waitConns() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked socket. Blocked reads and
// writes fail at once and the connection goroutines exit.
func (s *NetisoAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection",
				logger.KeyConnID, key,
				logger.KeyError, err)
		} else {
			closed++
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed connections", logger.KeyCount, closed)
	}
}

// Stop initiates shutdown and waits for active connections until ctx is
// done.
//
// Shutdown closes the listeners and cancels in-flight requests. Serve
// force-closes whatever is still open once ShutdownTimeout elapses.
//
// Parameters:
//   - ctx: bounds the wait for active connections; nil waits up to
//     ShutdownTimeout and then force-closes
//
// Returns:
//   - nil if all connections completed gracefully
//   - ctx.Err() if ctx expired first
//
// Thread safety:
// Safe to call multiple times and concurrently with Serve.
func (s *NetisoAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.waitConns():
		return nil
	case <-ctx.Done():
		logger.Warn("Shutdown context cancelled with connections still active",
			logger.KeyActive, s.connCount.Load(),
			logger.KeyError, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the connection count and prunes idle
// per-client rate limit buckets.
func (s *NetisoAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			pruned := s.perClient.Prune()
			logger.Info("Server metrics",
				logger.KeyActive, s.connCount.Load(),
				"rate_limited_clients", s.perClient.Len(),
				"pruned", pruned)
		}
	}
}

// Ready is closed once the listeners are bound and Port is final.
func (s *NetisoAdapter) Ready() <-chan struct{} { return s.ready }

// GetActiveConnections returns the current number of active connections.
func (s *NetisoAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once listening, the configured one before.
func (s *NetisoAdapter) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundPort != 0 {
		return s.boundPort
	}
	return s.config.Port
}

// Protocol returns "NETISO".
func (s *NetisoAdapter) Protocol() string {
	return "NETISO"
}
