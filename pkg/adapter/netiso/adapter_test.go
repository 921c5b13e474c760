package netiso

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/resolver"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// rejectMetrics records connection lifecycle events.
type rejectMetrics struct {
	mu       sync.Mutex
	accepted int
	closed   int
	rejected []string
}

func (m *rejectMetrics) RecordCommand(string, time.Duration, error)         {}
func (m *rejectMetrics) RecordBytesRead(int64)                              {}
func (m *rejectMetrics) RecordBytesWritten(int64)                           {}
func (m *rejectMetrics) SetActiveConnections(int32)                         {}
func (m *rejectMetrics) RecordVirtualISOBuild(time.Duration, uint32, error) {}

func (m *rejectMetrics) RecordConnectionAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted++
}

func (m *rejectMetrics) RecordConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *rejectMetrics) RecordConnectionRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, reason)
}

func (m *rejectMetrics) reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejected...)
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/srv/GAMES", 0755))
	require.NoError(t, afero.WriteFile(fs, "/srv/GAMES/a.iso", make([]byte, 100), 0644))
	return Deps{Resolver: resolver.New(fs, "/srv")}
}

type running struct {
	adapter *NetisoAdapter
	cancel  context.CancelFunc
	done    chan error
}

func startAdapter(t *testing.T, cfg NetisoConfig, m *rejectMetrics) *running {
	t.Helper()

	cfg.Listen = []string{"127.0.0.1"}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	a, err := New(cfg, testDeps(t), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("adapter exited before listening: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("adapter did not start listening")
	}

	r := &running{adapter: a, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return r
}

func (r *running) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(r.adapter.Port())), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dirSize performs one GET_DIR_SIZE round trip.
func dirSize(t *testing.T, conn net.Conn, path string) int64 {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	h := wire.PathHeader(wire.OpGetDirSize, len(path)).Bytes()
	_, err := conn.Write(append(h[:], path...))
	require.NoError(t, err)

	resp := make([]byte, 8)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	return wire.Int64(resp)
}

// expectClosed asserts the server closed conn without sending anything.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)

	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server did not close the connection")
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestNewValidation(t *testing.T) {
	deps := testDeps(t)

	_, err := New(NetisoConfig{Port: -1}, deps, nil)
	assert.Error(t, err)

	_, err = New(NetisoConfig{MaxConnections: -1}, deps, nil)
	assert.Error(t, err)

	_, err = New(NetisoConfig{Listen: []string{"not-an-ip"}}, deps, nil)
	assert.Error(t, err)

	_, err = New(NetisoConfig{}, Deps{}, nil)
	assert.Error(t, err, "resolver is required")

	_, err = New(NetisoConfig{Filter: FilterConfig{Mode: "ALLOWED"}}, deps, nil)
	assert.Error(t, err, "ALLOWED without addresses")

	a, err := New(NetisoConfig{}, deps, nil)
	require.NoError(t, err)
	assert.Equal(t, "NETISO", a.Protocol())
	assert.Equal(t, 0, a.Port())
	assert.Equal(t, 30*time.Second, a.config.ShutdownTimeout)
	assert.Equal(t, FilterNone, a.filter.Mode())
}

func TestApplyDefaults(t *testing.T) {
	t.Run("ZeroValues", func(t *testing.T) {
		var c NetisoConfig
		c.ApplyDefaults()
		assert.Equal(t, 30*time.Second, c.ReadTimeout)
		assert.Equal(t, 30*time.Second, c.WriteTimeout)
		assert.Equal(t, 30*time.Second, c.ShutdownTimeout)
		assert.Equal(t, 5*time.Minute, c.MetricsLogInterval)
		assert.Equal(t, string(FilterNone), c.Filter.Mode)
		assert.Zero(t, c.IdleTimeout)
	})

	t.Run("NegativeMetricsIntervalStaysDisabled", func(t *testing.T) {
		c := NetisoConfig{MetricsLogInterval: -1}
		c.ApplyDefaults()
		assert.Equal(t, time.Duration(-1), c.MetricsLogInterval)

		a, err := New(c, testDeps(t), nil)
		require.NoError(t, err)
		assert.Negative(t, a.config.MetricsLogInterval)
	})

	t.Run("ExplicitValuesKept", func(t *testing.T) {
		c := NetisoConfig{MetricsLogInterval: time.Minute, ReadTimeout: time.Second}
		c.ApplyDefaults()
		assert.Equal(t, time.Minute, c.MetricsLogInterval)
		assert.Equal(t, time.Second, c.ReadTimeout)
	})
}

func TestServeWithMetricsLogDisabled(t *testing.T) {
	m := &rejectMetrics{}
	r := startAdapter(t, NetisoConfig{MetricsLogInterval: -time.Second}, m)

	conn := r.dial(t)
	assert.Equal(t, int64(100), dirSize(t, conn, "/GAMES"))
	require.NoError(t, conn.Close())

	r.cancel()
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop")
	}
}

func TestServeAndGracefulShutdown(t *testing.T) {
	m := &rejectMetrics{}
	r := startAdapter(t, NetisoConfig{}, m)
	assert.NotZero(t, r.adapter.Port())

	conn := r.dial(t)
	assert.Equal(t, int64(100), dirSize(t, conn, "/GAMES"))
	assert.Equal(t, int32(1), r.adapter.GetActiveConnections())

	r.cancel()

	select {
	case err := <-r.done:
		assert.NoError(t, err, "idle connections finish before the timeout")
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	expectClosed(t, conn)
	assert.Equal(t, int32(0), r.adapter.GetActiveConnections())

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.accepted)
	assert.Equal(t, 1, m.closed)
}

func TestMaxConnectionsRejectsExtraClients(t *testing.T) {
	m := &rejectMetrics{}
	r := startAdapter(t, NetisoConfig{MaxConnections: 1}, m)

	first := r.dial(t)
	assert.Equal(t, int64(100), dirSize(t, first, "/GAMES"))

	second := r.dial(t)
	expectClosed(t, second)
	assert.Equal(t, []string{RejectLimit}, m.reasons())

	// the slot frees up once the first client leaves
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return r.adapter.GetActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)

	third := r.dial(t)
	assert.Equal(t, int64(100), dirSize(t, third, "/GAMES"))
}

func TestAddressFilterRejects(t *testing.T) {
	m := &rejectMetrics{}
	r := startAdapter(t, NetisoConfig{
		Filter: FilterConfig{Mode: "ALLOWED", Addresses: []string{"10.0.0.1"}},
	}, m)

	expectClosed(t, r.dial(t))
	assert.Equal(t, []string{RejectFilter}, m.reasons())
	assert.Equal(t, int32(0), r.adapter.GetActiveConnections())
}

func TestBlockedFilterAcceptsOthers(t *testing.T) {
	r := startAdapter(t, NetisoConfig{
		Filter: FilterConfig{Mode: "BLOCKED", Addresses: []string{"192.168.0.0/16"}},
	}, &rejectMetrics{})

	assert.Equal(t, int64(100), dirSize(t, r.dial(t), "/GAMES"))
}

func TestPerClientRateLimit(t *testing.T) {
	m := &rejectMetrics{}
	r := startAdapter(t, NetisoConfig{
		RateLimit: RateLimitConfig{PerClientPerSecond: 0.001, PerClientBurst: 1},
	}, m)

	assert.Equal(t, int64(100), dirSize(t, r.dial(t), "/GAMES"))
	expectClosed(t, r.dial(t))
	assert.Equal(t, []string{RejectRate}, m.reasons())
}

func TestStopBeforeServe(t *testing.T) {
	a, err := New(NetisoConfig{Listen: []string{"127.0.0.1"}}, testDeps(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx), "Stop is idempotent")

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running after Stop")
	}
}

func TestStopDrainsConnections(t *testing.T) {
	r := startAdapter(t, NetisoConfig{}, &rejectMetrics{})
	conn := r.dial(t)
	assert.Equal(t, int64(100), dirSize(t, conn, "/GAMES"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.adapter.Stop(ctx))

	expectClosed(t, conn)
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	port := busy.Addr().(*net.TCPAddr).Port
	a, err := New(NetisoConfig{Listen: []string{"127.0.0.1"}, Port: port}, testDeps(t), nil)
	require.NoError(t, err)

	assert.Error(t, a.Serve(context.Background()))
}
