package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts custody transitions and rejected attempts.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Rejections  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchain_custody_transitions_total",
			Help: "Custody transitions, by the status entered",
		}, []string{"status"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchain_custody_rejections_total",
			Help: "Custody operations rejected, by operation and error code",
		}, []string{"operation", "code"}),
	}
}

func (m *Metrics) IncTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncRejected(operation, code string) {
	m.Rejections.WithLabelValues(operation, code).Inc()
}
