package netiso

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/handlers"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/iso"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	"github.com/marmos91/ps3netsrv/pkg/resolver"
)

// readBufferSize sizes the buffered reader in front of the socket. Headers
// and paths are small; write payloads stream through it.
const readBufferSize = 64 << 10

// Timeouts bounds how long a connection may block. Zero disables a timeout.
type Timeouts struct {
	// Read bounds reading a request payload once its header has arrived.
	Read time.Duration

	// Write bounds writing one response.
	Write time.Duration

	// Idle bounds the wait for the next request header.
	Idle time.Duration
}

// ConnConfig carries what a connection needs from the server.
type ConnConfig struct {
	Resolver   *resolver.Resolver
	ReadOnly   bool
	Timeouts   Timeouts
	Metrics    metrics.NetisoMetrics
	ISOOptions []iso.Option

	// Logger is bound to the connection id and client address. Nil uses
	// the global logger.
	Logger *slog.Logger
}

// Conn serves requests of one client connection until the client leaves,
// a fatal error occurs or the context is cancelled.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	cfg     ConnConfig
	session *handlers.Session
	metrics metrics.NetisoMetrics
	log     *slog.Logger
}

// NewConn wraps an accepted connection.
func NewConn(nc net.Conn, cfg ConnConfig) *Conn {
	clientAddr := nc.RemoteAddr().String()

	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopNetisoMetrics()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.With(logger.KeyClientAddr, clientAddr)
	}

	return &Conn{
		conn:    nc,
		r:       bufio.NewReaderSize(nc, readBufferSize),
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     log,
		session: handlers.NewSession(handlers.SessionConfig{
			Resolver:   cfg.Resolver,
			ReadOnly:   cfg.ReadOnly,
			ClientAddr: clientAddr,
			Metrics:    cfg.Metrics,
			ISOOptions: cfg.ISOOptions,
			Logger:     log,
		}),
	}
}

// Session returns the connection state. Intended for tests.
func (c *Conn) Session() *handlers.Session { return c.session }

// Serve runs the request loop. The session and the socket are closed on
// return, panics included.
//
// A clean disconnect or context cancellation returns nil. Any other error
// that ended the connection is returned.
func (c *Conn) Serve(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic in connection handler",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if cerr := c.session.Close(); cerr != nil {
			c.log.Warn("Session cleanup failed", logger.KeyError, cerr)
		}
		_ = c.conn.Close()
	}()

	c.log.Debug("Connection started")

	// wake a read blocked on an idle client
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Connection closed due to context cancellation")
			return nil
		default:
		}

		if err := c.handleRequest(ctx); err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				c.log.Debug("Connection closed by client")
				return nil
			case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.log.Debug("Connection cancelled", logger.KeyError, err)
				return nil
			case errors.As(err, &netErr) && netErr.Timeout():
				c.log.Debug("Connection timed out", logger.KeyError, err)
				return err
			default:
				c.log.Warn("Closing connection", logger.KeyError, err)
				return err
			}
		}
	}
}

// handleRequest reads, executes and answers one request. A non-nil return
// ends the connection.
func (c *Conn) handleRequest(ctx context.Context) error {
	if c.cfg.Timeouts.Idle > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeouts.Idle)); err != nil {
			return fmt.Errorf("set idle deadline: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	header, err := wire.ReadHeader(c.r)
	if err != nil {
		return err
	}

	info, ok := Lookup(header.Opcode)
	if !ok {
		err := fmt.Errorf("%w: unknown opcode %s", wire.ErrProtocol, header.Opcode)
		c.metrics.RecordCommand(header.Opcode.String(), 0, err)
		c.log.Warn("Unknown command",
			logger.KeyOpcode, fmt.Sprintf("0x%04X", uint16(header.Opcode)))
		return wire.Fatal(err)
	}

	if c.cfg.Timeouts.Read > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeouts.Read)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}

	start := time.Now()
	resp, herr := info.Handler(ctx, c.session, &handlers.Request{Header: header, Body: c.r})
	duration := time.Since(start)
	defer resp.Release()

	if resp != nil {
		if err := c.writeResponse(resp.Data()); err != nil {
			c.metrics.RecordCommand(info.Name, duration, err)
			return err
		}
		if resp.BytesRead > 0 {
			c.metrics.RecordBytesRead(resp.BytesRead)
		}
		if resp.BytesWritten > 0 {
			c.metrics.RecordBytesWritten(resp.BytesWritten)
		}
	}
	c.metrics.RecordCommand(info.Name, duration, herr)

	c.logCommand(info, resp, herr, duration)

	if wire.IsFatal(herr) {
		return fmt.Errorf("%s: %w", info.Name, herr)
	}
	return nil
}

// writeResponse sends data in one Write. Empty responses send nothing.
func (c *Conn) writeResponse(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if c.cfg.Timeouts.Write > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeouts.Write)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// logCommand traces one command. Namespace changes are logged at INFO,
// misses at DEBUG and other non-fatal failures at WARN. Fatal failures are
// logged once the connection closes.
func (c *Conn) logCommand(info *CommandInfo, resp *handlers.Response, err error, duration time.Duration) {
	ms := float64(duration.Microseconds()) / 1000

	switch {
	case err == nil:
		if info.Mutates && (resp == nil || resp.BytesWritten == 0) {
			c.log.Info("Command executed", logger.KeyCommand, info.Name, logger.KeyDurationMs, ms)
			return
		}
		c.log.Debug("Command executed", logger.KeyCommand, info.Name, logger.KeyDurationMs, ms)
	case wire.IsFatal(err):
	case errors.Is(err, wire.ErrNotFound):
		c.log.Debug("Command failed", logger.KeyCommand, info.Name, logger.KeyError, err)
	default:
		c.log.Warn("Command failed", logger.KeyCommand, info.Name, logger.KeyError, err)
	}
}
