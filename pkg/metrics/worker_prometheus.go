// Package metrics exposes pipeline counters and histograms to Prometheus and
// keeps in-process latency percentiles for the health endpoints.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campaign"

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock time of each pipeline stage.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Pipeline stages that raised an error.",
	}, []string{"stage"})

	runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed pipeline runs by outcome.",
	}, []string{"outcome"})

	generationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_fallbacks_total",
		Help:      "Template fallbacks taken by the variant generator.",
	}, []string{"reason"})

	safetyBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "safety_blocked_total",
		Help:      "Variants blocked by the safety gate, by reason kind.",
	}, []string{"kind"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Delivery attempts by status.",
	}, []string{"status"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Worker jobs by result.",
	}, []string{"type", "result"})
)

// ObserveStage records a stage duration and, when err is non-nil, a failure.
func ObserveStage(stage string, d time.Duration, err error) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	RecordLatency("stage:"+stage, d)
	if err != nil {
		stageFailures.WithLabelValues(stage).Inc()
	}
}

func IncRunOutcome(outcome string)       { runOutcomes.WithLabelValues(outcome).Inc() }
func IncGenerationFallback(reason string) { generationFallbacks.WithLabelValues(reason).Inc() }
func IncSafetyBlocked(kind string)        { safetyBlocked.WithLabelValues(kind).Inc() }
func IncDelivery(status string)           { deliveries.WithLabelValues(status).Inc() }

// IncJob counts a processed worker job. result is "ok", "retry" or "dlq".
func IncJob(jobType, result string) {
	jobsProcessed.WithLabelValues(jobType, result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
