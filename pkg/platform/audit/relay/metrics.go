package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published           prometheus.Counter
	PublishFailures     prometheus.Counter
	Pending             prometheus.Gauge
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_outbox_published_total",
			Help: "Total number of outbox events delivered to the sink",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_outbox_publish_failures_total",
			Help: "Total number of failed sink publishes",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "aidchain_outbox_pending",
			Help: "Number of pending events seen on the last poll",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "aidchain_outbox_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) setCircuitState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
		return
	}
	m.CircuitBreakerState.Set(0)
}
