package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics tracks viewer websocket upgrades at the HTTP edge.
type ConnectionMetrics struct {
	ActiveConnections prometheus.Gauge
	Rejected          *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics on the given registry.
func NewConnectionMetrics(reg prometheus.Registerer) *ConnectionMetrics {
	m := &ConnectionMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open viewer websocket connections.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of viewer connections rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.Rejected)
	return m
}
