package prometheus

import (
	"time"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// netisoMetrics is the Prometheus implementation of metrics.NetisoMetrics.
type netisoMetrics struct {
	commandsTotal       *prometheus.CounterVec
	commandDuration     *prometheus.HistogramVec
	bytesTransferred    *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	isoBuildsTotal      *prometheus.CounterVec
	isoBuildDuration    prometheus.Histogram
	isoBuildSectors     prometheus.Histogram
}

// NewNetisoMetrics creates a Prometheus-backed NetisoMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewNetisoMetrics() metrics.NetisoMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopNetisoMetrics()
	}
	return newNetisoMetrics(metrics.GetRegistry())
}

func newNetisoMetrics(reg prometheus.Registerer) *netisoMetrics {
	return &netisoMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ps3netsrv_commands_total",
				Help: "Total number of protocol commands by command, status and error class",
			},
			[]string{"command", "status", "error_class"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ps3netsrv_command_duration_seconds",
				Help: "Duration of protocol commands in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.0005, // 500us
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ps3netsrv_bytes_transferred_total",
				Help: "Total payload bytes transferred",
			},
			[]string{"direction"}, // read or write
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ps3netsrv_active_connections",
				Help: "Current number of active client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ps3netsrv_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ps3netsrv_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ps3netsrv_connections_rejected_total",
				Help: "Total number of connections closed at accept time",
			},
			[]string{"reason"},
		),
		isoBuildsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ps3netsrv_virtual_iso_builds_total",
				Help: "Total number of virtual ISO builds by status",
			},
			[]string{"status"},
		),
		isoBuildDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ps3netsrv_virtual_iso_build_duration_seconds",
				Help:    "Time spent scanning and laying out virtual ISO images",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
			},
		),
		isoBuildSectors: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ps3netsrv_virtual_iso_sectors",
				Help:    "Volume size of built virtual ISO images in 2048-byte sectors",
				Buckets: prometheus.ExponentialBuckets(512, 8, 7), // 1MB .. ~256GB
			},
		),
	}
}

func (m *netisoMetrics) RecordCommand(command string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.commandsTotal.WithLabelValues(command, status, wire.Class(err)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *netisoMetrics) RecordBytesRead(bytes int64) {
	m.bytesTransferred.WithLabelValues("read").Add(float64(bytes))
}

func (m *netisoMetrics) RecordBytesWritten(bytes int64) {
	m.bytesTransferred.WithLabelValues("write").Add(float64(bytes))
}

func (m *netisoMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *netisoMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *netisoMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *netisoMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *netisoMetrics) RecordVirtualISOBuild(duration time.Duration, sectors uint32, err error) {
	if err != nil {
		m.isoBuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.isoBuildsTotal.WithLabelValues("success").Inc()
	m.isoBuildDuration.Observe(duration.Seconds())
	m.isoBuildSectors.Observe(float64(sectors))
}
