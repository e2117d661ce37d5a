// Package metrics provides Prometheus metrics for the runlens engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks currently attached viewing sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runlens",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently attached viewing sessions",
		},
	)

	// EventsMerged counts events accepted into a session's log.
	EventsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "eventlog",
			Name:      "events_merged_total",
			Help:      "Total number of events accepted into event logs",
		},
	)

	// EventsDuplicate counts redelivered events dropped by the merger.
	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "eventlog",
			Name:      "events_duplicate_total",
			Help:      "Total number of duplicate events dropped during merge",
		},
	)

	// ChunksIngested counts terminal chunks received per stream.
	ChunksIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "terminal",
			Name:      "chunks_ingested_total",
			Help:      "Total number of terminal chunks received",
		},
		[]string{"stream"},
	)

	// ChunksDropped counts duplicate or stale chunks dropped by the store.
	ChunksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "terminal",
			Name:      "chunks_dropped_total",
			Help:      "Total number of duplicate terminal chunks dropped",
		},
	)

	// WireRejected counts payloads dropped at the wire boundary by kind.
	WireRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "wire",
			Name:      "rejected_total",
			Help:      "Total number of wire payloads rejected by schema validation",
		},
		[]string{"kind"},
	)

	// TransportMode tracks the active delivery mode per session (0=none,
	// 1=polling, 2=realtime).
	TransportMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "runlens",
			Subsystem: "transport",
			Name:      "mode",
			Help:      "Active transport mode (0=none, 1=polling, 2=realtime)",
		},
		[]string{"run_id"},
	)

	// TransportReconnects counts reconnect attempts.
	TransportReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Total number of transport reconnect attempts",
		},
	)

	// TransportErrors counts transport failures by stage.
	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Total number of transport errors",
		},
		[]string{"stage"}, // "connect", "stream", "poll"
	)

	// SeeksTotal counts playback seeks by direction.
	SeeksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "playback",
			Name:      "seeks_total",
			Help:      "Total number of playback seeks",
		},
		[]string{"direction"}, // "forward", "backward"
	)

	// TerminalResets counts full renderer resets triggered by backward seeks.
	TerminalResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "terminal",
			Name:      "renderer_resets_total",
			Help:      "Total number of full terminal renderer resets",
		},
	)

	// SSEActiveConnections tracks open watch streams.
	SSEActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runlens",
			Subsystem: "api",
			Name:      "sse_active_connections",
			Help:      "Number of active SSE watch connections",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runlens",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
