package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SubmissionsAllowed prometheus.Counter
	SubmissionsDenied  prometheus.Counter
	BudgetResets       prometheus.Counter
	StoreErrors        prometheus.Counter
}

// New registers the limiter metrics on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsAllowed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_ratelimit_submissions_allowed_total",
			Help: "Total number of submissions admitted by the per-user rate limiter",
		}),
		SubmissionsDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_ratelimit_submissions_denied_total",
			Help: "Total number of submissions rejected by the per-user rate limiter",
		}),
		BudgetResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_ratelimit_budget_resets_total",
			Help: "Total number of admin submission budget resets",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_ratelimit_store_errors_total",
			Help: "Total number of counter store failures",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	m.SubmissionsAllowed.Inc()
}

func (m *Metrics) IncrementDenied() {
	m.SubmissionsDenied.Inc()
}

func (m *Metrics) IncrementResets() {
	m.BudgetResets.Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}
