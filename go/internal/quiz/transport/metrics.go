package transport

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting transport metrics
type MetricsCollector interface {
	RecordDial(success bool, duration time.Duration)
	RecordSendRetry()
	RecordFrameSent()
	RecordFrameReceived()
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordDial(success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordSendRetry()                                {}
func (n *NoOpMetricsCollector) RecordFrameSent()                                {}
func (n *NoOpMetricsCollector) RecordFrameReceived()                            {}

// CounterMetrics keeps in-process counters, exposed by the status server
type CounterMetrics struct {
	dials          atomic.Int64
	dialFailures   atomic.Int64
	lastDialMillis atomic.Int64
	sendRetries    atomic.Int64
	framesSent     atomic.Int64
	framesReceived atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of CounterMetrics
type MetricsSnapshot struct {
	Dials          int64 `json:"dials"`
	DialFailures   int64 `json:"dial_failures"`
	LastDialMillis int64 `json:"last_dial_ms"`
	SendRetries    int64 `json:"send_retries"`
	FramesSent     int64 `json:"frames_sent"`
	FramesReceived int64 `json:"frames_received"`
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{}
}

func (m *CounterMetrics) RecordDial(success bool, duration time.Duration) {
	if !success {
		m.dialFailures.Add(1)
	}
	m.lastDialMillis.Store(duration.Milliseconds())
	m.dials.Add(1)
}

func (m *CounterMetrics) RecordSendRetry()     { m.sendRetries.Add(1) }
func (m *CounterMetrics) RecordFrameSent()     { m.framesSent.Add(1) }
func (m *CounterMetrics) RecordFrameReceived() { m.framesReceived.Add(1) }

// Snapshot returns the current counter values
func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Dials:          m.dials.Load(),
		DialFailures:   m.dialFailures.Load(),
		LastDialMillis: m.lastDialMillis.Load(),
		SendRetries:    m.sendRetries.Load(),
		FramesSent:     m.framesSent.Load(),
		FramesReceived: m.framesReceived.Load(),
	}
}
