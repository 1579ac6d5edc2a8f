package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oeis",
		Name:      "jobs_started_total",
		Help:      "Number of background jobs started, per slot.",
	}, []string{"slot"})
	metricJobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oeis",
		Name:      "job_outcomes_total",
		Help:      "Delivered job outcomes by slot, outcome and abnormal-termination reason.",
	}, []string{"slot", "outcome", "reason"})
	metricJobsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oeis",
		Name:      "jobs_discarded_total",
		Help:      "Results of cancelled or superseded jobs that were dropped without delivery.",
	}, []string{"slot"})
	metricJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oeis",
		Name:      "job_duration_seconds",
		Help:      "Wall time from job start to completion.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"slot"})
)

func recordStart(slot Slot) {
	metricJobsStarted.WithLabelValues(slot.String()).Inc()
}

func recordOutcome(ev OutcomeEvent) {
	metricJobOutcomes.WithLabelValues(ev.Slot.String(), ev.Kind.String(), ev.Reason.String()).Inc()
	metricJobDuration.WithLabelValues(ev.Slot.String()).Observe(ev.Elapsed.Seconds())
}

func recordDiscard(slot Slot, elapsed time.Duration) {
	metricJobsDiscarded.WithLabelValues(slot.String()).Inc()
	metricJobDuration.WithLabelValues(slot.String()).Observe(elapsed.Seconds())
}
