package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeVerified  = "already_verified"
	OutcomeLimited   = "rate_limited"
	OutcomeStorage   = "storage_failure"
	OutcomeError     = "error"
)

type Metrics struct {
	Submissions       *prometheus.CounterVec
	Reviews           *prometheus.CounterVec
	ReviewRacesLost   prometheus.Counter
	SubmitDuration    prometheus.Histogram
	DocumentsStored   prometheus.Counter
	DocumentBytes     prometheus.Counter
	OrphanCleanupErrs prometheus.Counter
}

// New registers the verification metrics on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_verification_submissions_total",
			Help: "Total number of verification submissions by type and outcome",
		}, []string{"verification_type", "outcome"}),
		Reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_verification_reviews_total",
			Help: "Total number of completed reviews by decision",
		}, []string{"decision"}),
		ReviewRacesLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_verification_review_races_lost_total",
			Help: "Total number of reviews that lost to a concurrent review of the same request",
		}),
		SubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vouch_verification_submit_duration_seconds",
			Help:    "Time spent handling a submission, including document storage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DocumentsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_verification_documents_stored_total",
			Help: "Total number of documents written to storage",
		}),
		DocumentBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_verification_document_bytes_total",
			Help: "Total bytes written to document storage",
		}),
		OrphanCleanupErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "vouch_verification_orphan_cleanup_errors_total",
			Help: "Total number of stored documents that could not be removed after a failed submission",
		}),
	}
}

func (m *Metrics) IncrementSubmission(verificationType, outcome string) {
	m.Submissions.WithLabelValues(verificationType, outcome).Inc()
}

func (m *Metrics) IncrementReview(decision string) {
	m.Reviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementReviewRaceLost() {
	m.ReviewRacesLost.Inc()
}

func (m *Metrics) ObserveSubmitDuration(d time.Duration) {
	m.SubmitDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDocumentStored(sizeBytes int64) {
	m.DocumentsStored.Inc()
	m.DocumentBytes.Add(float64(sizeBytes))
}

func (m *Metrics) IncrementOrphanCleanupError() {
	m.OrphanCleanupErrs.Inc()
}
