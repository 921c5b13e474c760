package metrics

import "time"

// NetisoMetrics provides observability for the netiso adapter and its
// command loop.
//
// Implementations collect command latency and outcome, payload throughput,
// connection lifecycle and virtual ISO builds. The interface is optional:
// components given nil fall back to NewNoopNetisoMetrics.
//
// Example usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewNetisoMetrics()
//	adapter := netiso.New(config, deps, m)
type NetisoMetrics interface {
	// RecordCommand records a completed command.
	//
	// Parameters:
	//   - command: command name (e.g., "OPEN_DIR", "READ_CD_2048_CRITICAL")
	//   - duration: time spent decoding, executing and encoding
	//   - err: the handler error, nil on success
	RecordCommand(command string, duration time.Duration, err error)

	// RecordBytesRead records payload bytes sent to the client.
	RecordBytesRead(bytes int64)

	// RecordBytesWritten records payload bytes received from the client.
	RecordBytesWritten(bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionRejected counts a connection closed at accept time.
	//
	// Parameters:
	//   - reason: "filter", "limit" or "rate"
	RecordConnectionRejected(reason string)

	// RecordVirtualISOBuild records one virtual ISO synthesis.
	//
	// Parameters:
	//   - duration: time spent scanning and laying out the tree
	//   - sectors: volume size in sectors, 0 on failure
	//   - err: build error, nil on success
	RecordVirtualISOBuild(duration time.Duration, sectors uint32, err error)
}

// NewNoopNetisoMetrics returns a NetisoMetrics that discards everything.
func NewNoopNetisoMetrics() NetisoMetrics {
	return noopNetisoMetrics{}
}

// noopNetisoMetrics is a no-op implementation of NetisoMetrics with zero overhead.
type noopNetisoMetrics struct{}

func (noopNetisoMetrics) RecordCommand(command string, duration time.Duration, err error) {}
func (noopNetisoMetrics) RecordBytesRead(bytes int64)                                     {}
func (noopNetisoMetrics) RecordBytesWritten(bytes int64)                                  {}
func (noopNetisoMetrics) SetActiveConnections(count int32)                                {}
func (noopNetisoMetrics) RecordConnectionAccepted()                                       {}
func (noopNetisoMetrics) RecordConnectionClosed()                                         {}
func (noopNetisoMetrics) RecordConnectionRejected(reason string)                          {}
func (noopNetisoMetrics) RecordVirtualISOBuild(duration time.Duration, sectors uint32, err error) {
}
