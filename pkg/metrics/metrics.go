// Package metrics exposes the server's Prometheus instrumentation: counters
// and gauges tracking connections, dispatched operations, and wire traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the event loop and handler dispatch path
// update. A nil *Metrics is valid and every method on it is a no-op, so
// disabling metrics in config costs nothing but a pointer check.
type Metrics struct {
	ConnectionsTotal     prometheus.Counter
	ConnectionsActive    prometheus.Gauge
	RequestsTotal        *prometheus.CounterVec
	BytesReceivedTotal   prometheus.Counter
	BytesSentTotal       prometheus.Counter
	ProtocolPoisonsTotal prometheus.Counter
}

// New registers and returns a fresh set of collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennyfsd",
			Name:      "connections_total",
			Help:      "Total TCP connections accepted.",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kennyfsd",
			Name:      "connections_active",
			Help:      "Currently open TCP connections.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kennyfsd",
			Name:      "requests_total",
			Help:      "Total requests dispatched, by operation name.",
		}, []string{"op"}),
		BytesReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennyfsd",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from client sockets.",
		}),
		BytesSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennyfsd",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to client sockets.",
		}),
		ProtocolPoisonsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennyfsd",
			Name:      "protocol_poisons_total",
			Help:      "Connections closed for a protocol violation (bad SOP, oversize body).",
		}),
	}
}

// ConnectionOpened records a newly accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// ConnectionClosed records a torn-down connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// RequestDispatched records one handler invocation for op.
func (m *Metrics) RequestDispatched(op string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(op).Inc()
}

// BytesReceived records n bytes read from a client socket.
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceivedTotal.Add(float64(n))
}

// BytesSent records n bytes written to a client socket.
func (m *Metrics) BytesSent(n int) {
	if m == nil {
		return
	}
	m.BytesSentTotal.Add(float64(n))
}

// ProtocolPoisoned records a connection closed for a protocol violation.
func (m *Metrics) ProtocolPoisoned() {
	if m == nil {
		return
	}
	m.ProtocolPoisonsTotal.Inc()
}
