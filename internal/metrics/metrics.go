package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wequack_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wequack_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Real-time metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wequack_ws_connections",
			Help: "Open WebSocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wequack_online_users",
			Help: "Users with at least one live connection",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wequack_ws_inbound_events_total",
			Help: "Inbound real-time events by kind and outcome",
		},
		[]string{"kind", "outcome"}, // "ok", "dropped"
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wequack_ws_dropped_events_total",
			Help: "Outbound events dropped because a send queue was full",
		},
		[]string{"kind"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wequack_messages_sent_total",
			Help: "Total messages persisted",
		},
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wequack_read_receipts_total",
			Help: "Total read receipts recorded",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wequack_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"path"},
	)
)
