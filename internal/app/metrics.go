package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus instruments. Build one per registry so tests
// can use isolated registries.
type Metrics struct {
	Connections   prometheus.Gauge
	Joins         prometheus.Counter
	JoinFailures  *prometheus.CounterVec
	Leaves        prometheus.Counter
	Relayed       *prometheus.CounterVec
	RoutingMisses *prometheus.CounterVec
	Messages      prometheus.Counter
	Dropped       prometheus.Counter
	CleanupErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle", Name: "connections",
			Help: "Live signaling connections on this instance.",
		}),
		Joins: f.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "joins_total",
			Help: "Successful room joins.",
		}),
		JoinFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "join_failures_total",
			Help: "Rejected or failed room joins by error code.",
		}, []string{"code"}),
		Leaves: f.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "leaves_total",
			Help: "Room leaves, explicit or by disconnect.",
		}),
		Relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "signals_relayed_total",
			Help: "Signaling messages delivered to a target connection.",
		}, []string{"kind"}),
		RoutingMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "routing_misses_total",
			Help: "Signaling messages dropped because the target had no connection.",
		}, []string{"kind"}),
		Messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "chat_messages_total",
			Help: "Chat messages persisted and broadcast.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle", Name: "frames_dropped_total",
			Help: "Frames not enqueued because of backpressure.",
		}),
		CleanupErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huddle", Name: "cleanup_errors_total",
			Help: "Failed disconnect cleanup steps.",
		}, []string{"step"}),
	}
}
