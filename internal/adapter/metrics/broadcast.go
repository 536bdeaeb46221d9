package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics tracks the viewer registry and the sessions it fans out to.
type BroadcastMetrics struct {
	ActiveSessions    prometheus.Gauge
	Notifications     *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	SessionCloses     *prometheus.CounterVec
	RegisterFailures  prometheus.Counter
	HeartbeatTimeouts prometheus.Counter
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "active_sessions",
			Help:      "Number of viewer sessions currently registered.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "notifications_total",
			Help:      "Total number of notifications fanned out, by event.",
		}, []string{"event"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "delivery_failures_total",
			Help:      "Total number of per-session deliveries that failed, by event.",
		}, []string{"event"}),
		SessionCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "session_closes_total",
			Help:      "Total number of viewer sessions closed, by reason.",
		}, []string{"reason"}),
		RegisterFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "register_failures_total",
			Help:      "Total number of sessions that could not be registered.",
		}),
		HeartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of sessions closed because the peer went silent.",
		}),
	}

	reg.MustRegister(m.ActiveSessions, m.Notifications, m.DeliveryFailures, m.SessionCloses, m.RegisterFailures, m.HeartbeatTimeouts)
	return m
}
