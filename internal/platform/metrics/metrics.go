package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification pipeline.
type Metrics struct {
	SubmissionsTotal        prometheus.Counter
	SubmissionFailuresTotal prometheus.Counter

	EnrichmentProcessedTotal  prometheus.Counter
	EnrichmentSkippedTotal    *prometheus.CounterVec
	EnrichmentDurationSeconds prometheus.Histogram
	MatchFallbackTotal        prometheus.Counter

	DecisionsTotal       *prometheus.CounterVec
	StateDivergenceTotal prometheus.Counter
	ReconcileRepairs     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SubmissionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_submissions_total",
			Help: "Verification submissions accepted.",
		}),
		SubmissionFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_submission_failures_total",
			Help: "Verification submissions rejected before any write.",
		}),
		EnrichmentProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_enrichment_processed_total",
			Help: "Finalize events fully enriched.",
		}),
		EnrichmentSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storecred_enrichment_skipped_total",
			Help: "Finalize events skipped, by reason.",
		}, []string{"reason"}),
		EnrichmentDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "storecred_enrichment_duration_seconds",
			Help:    "Wall time of a single enrichment pass.",
			Buckets: prometheus.DefBuckets,
		}),
		MatchFallbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_match_fallback_total",
			Help: "Matches resolved by most-recent fallback instead of photo URL containment.",
		}),
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storecred_decisions_total",
			Help: "Admin decisions applied, by outcome.",
		}, []string{"decision"}),
		StateDivergenceTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_state_divergence_total",
			Help: "Partial decision fan-outs flagged for reconciliation.",
		}),
		ReconcileRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storecred_reconcile_repairs_total",
			Help: "User states repaired by the reconciler.",
		}),
	}
}
