// Package metrics provides Prometheus instrumentation for the chat relay.
// It exposes gauges for connection and streaming-session counts, counters for
// message and delta throughput, and a histogram for stream duration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts client messages processed, labeled by
	// type: "join", "message", "ping", or "invalid".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total number of client messages processed",
	}, []string{"type"})

	// ActiveSessions tracks the current number of streaming sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_sessions",
		Help: "Current number of active streaming sessions",
	})

	// DeltasTotal counts provider deltas received, labeled by provider name.
	DeltasTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deltas_total",
		Help: "Total number of provider stream deltas received",
	}, []string{"provider"})

	// SessionErrors counts failed streaming sessions, labeled by failure
	// kind: "validation", "auth", "provider".
	SessionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_session_errors_total",
		Help: "Total number of failed streaming sessions",
	}, []string{"kind"})

	// StreamDuration records end-to-end streaming session duration in seconds.
	StreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_stream_duration_seconds",
		Help:    "Streaming session duration in seconds",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		ActiveSessions,
		DeltasTotal,
		SessionErrors,
		StreamDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
