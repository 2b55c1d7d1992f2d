package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected     *prometheus.CounterVec
	StoreErrors  prometheus.Counter
	DegradedMode prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchain_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter, by endpoint class",
		}, []string{"class"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_rate_limit_store_errors_total",
			Help: "Failed checks against the primary rate limit store",
		}),
		DegradedMode: f.NewGauge(prometheus.GaugeOpts{
			Name: "aidchain_rate_limit_degraded",
			Help: "1 while the limiter runs on the in-memory fallback",
		}),
	}
}

func (m *Metrics) IncRejected(class string) {
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncStoreError() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(on bool) {
	if on {
		m.DegradedMode.Set(1)
		return
	}
	m.DegradedMode.Set(0)
}
