package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for contributions, minting and assignment.
type Metrics struct {
	Contributions      prometheus.Counter
	ContributedWei     prometheus.Counter
	UnitsIssued        prometheus.Counter
	UnitsAssigned      prometheus.Counter
	RejectedByCode     *prometheus.CounterVec
	PoolWei            prometheus.Gauge
	ContributeDuration prometheus.Histogram
}

// New registers ledger metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Contributions: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_contributions_total",
			Help: "Total number of accepted contributions",
		}),
		ContributedWei: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_contributed_wei_total",
			Help: "Total wei accepted, as a float approximation",
		}),
		UnitsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_units_issued_total",
			Help: "Total number of aid units minted",
		}),
		UnitsAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "aidchain_units_assigned_total",
			Help: "Total number of aid units assigned to custodians",
		}),
		RejectedByCode: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidchain_ledger_rejections_total",
			Help: "Ledger operations rejected, by operation and error code",
		}, []string{"operation", "code"}),
		PoolWei: f.NewGauge(prometheus.GaugeOpts{
			Name: "aidchain_pool_wei",
			Help: "Wei held in the pool awaiting the next threshold",
		}),
		ContributeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidchain_contribute_duration_seconds",
			Help:    "Duration of Contribute operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordContribution records an accepted contribution that minted units.
func (m *Metrics) RecordContribution(amount, pool *big.Int, minted int) {
	m.Contributions.Inc()
	f, _ := new(big.Float).SetInt(amount).Float64()
	m.ContributedWei.Add(f)
	m.UnitsIssued.Add(float64(minted))
	p, _ := new(big.Float).SetInt(pool).Float64()
	m.PoolWei.Set(p)
}

func (m *Metrics) IncAssigned() {
	m.UnitsAssigned.Inc()
}

func (m *Metrics) IncRejected(operation, code string) {
	m.RejectedByCode.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveContribute(start time.Time) {
	m.ContributeDuration.Observe(time.Since(start).Seconds())
}
