package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDefaults(t *testing.T) {
	s := NewServer(ServerConfig{})
	assert.Equal(t, 9090, s.Port())

	s = NewServer(ServerConfig{Address: "127.0.0.1", Port: 9191})
	assert.Equal(t, 9191, s.Port())
	assert.Equal(t, "127.0.0.1:9191", s.server.Addr)
}

func TestServerEndpoints(t *testing.T) {
	s := NewServer(ServerConfig{Port: 9191})

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/healthz", http.StatusOK},
		{"/", http.StatusOK},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	if !IsEnabled() {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(ServerConfig{Address: "127.0.0.1", Port: 0})
	s.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	assert.NoError(t, s.Stop(context.Background()))
}

func TestNoopNetisoMetrics(t *testing.T) {
	m := NewNoopNetisoMetrics()
	m.RecordCommand("OPEN_DIR", time.Millisecond, nil)
	m.RecordBytesRead(1)
	m.RecordBytesWritten(1)
	m.SetActiveConnections(1)
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.RecordConnectionRejected("filter")
	m.RecordVirtualISOBuild(time.Millisecond, 64, nil)
}
