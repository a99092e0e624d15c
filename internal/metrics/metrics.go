// Package metrics collects the server's Prometheus instrumentation:
// connection accept counts, per-command-kind throughput, and the live
// subscription count. Collectors are built up front and registered with a
// caller-supplied registry, returning the struct for direct field use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pocketredis"

// Metrics holds every collector the server updates while serving traffic.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	CommandsProcessed   *prometheus.CounterVec
	ActiveConnections   prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
}

// New builds the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Total number of inbound connections accepted.",
		}),
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "commands_processed_total",
			Help:      "Total number of commands applied, labeled by command name.",
		}, []string{"command"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of connections currently being served.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_subscriptions",
			Help:      "Number of channel subscriptions currently held across all connections.",
		}),
	}
}

// RegisterMetrics registers every collector with registry. Returns m for
// method chaining at the call site.
func (m *Metrics) RegisterMetrics(registry *prometheus.Registry) *Metrics {
	registry.MustRegister(
		m.ConnectionsAccepted,
		m.CommandsProcessed,
		m.ActiveConnections,
		m.ActiveSubscriptions,
	)
	return m
}
