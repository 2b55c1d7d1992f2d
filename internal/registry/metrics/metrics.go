package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity registry.
type Metrics struct {
	ParticipantsRegistered *prometheus.CounterVec
	AuthorityTransfers     prometheus.Counter
	RegisterDuration       prometheus.Histogram
}

// New registers registry metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ParticipantsRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchain_participants_registered_total",
			Help: "Total number of participant registrations by role",
		}, []string{"role"}),
		AuthorityTransfers: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_authority_transfers_total",
			Help: "Total number of authority hand-overs",
		}),
		RegisterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidchain_register_participant_duration_seconds",
			Help:    "Duration of RegisterParticipant operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncParticipantRegistered records a registration for role.
func (m *Metrics) IncParticipantRegistered(role string) {
	m.ParticipantsRegistered.WithLabelValues(role).Inc()
}

// IncAuthorityTransfer records an authority hand-over.
func (m *Metrics) IncAuthorityTransfer() {
	m.AuthorityTransfers.Inc()
}

// ObserveRegister records the duration of a RegisterParticipant call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
