package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runDuration tracks the time taken by apply-rules runs.
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_run_duration_seconds",
		Help:    "Time taken by apply-rules runs by outcome",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})

	// runsTotal counts apply-rules runs by outcome.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_runs_total",
		Help: "Total number of apply-rules runs by outcome",
	}, []string{"status"})

	// itemsEvaluated tracks the distribution of batch sizes.
	itemsEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_items_evaluated_count",
		Help:    "Number of items evaluated per run",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	})

	// itemsAffected tracks how many items changed per run.
	itemsAffected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_items_affected_count",
		Help:    "Number of items changed per run",
		Buckets: []float64{0, 1, 10, 50, 100, 500, 1000},
	})

	// rulesExcluded counts rules dropped from the active set for being
	// structurally invalid.
	rulesExcluded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_rules_excluded_total",
		Help: "Total number of rules excluded as structurally invalid",
	})

	// actionsRejected counts actions skipped for producing invalid prices.
	actionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_actions_rejected_total",
		Help: "Total number of actions rejected during application",
	})

	// persistFailures counts item writes the store reported as failed.
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_persist_failures_total",
		Help: "Total number of item writes that failed to persist",
	})
)

// MetricsRecorder provides methods to record engine metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordRun records the duration and outcome of a run.
func (m *MetricsRecorder) RecordRun(status RunStatus, duration time.Duration) {
	runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	runsTotal.WithLabelValues(string(status)).Inc()
}

// RecordBatch records the size and effect of a run's item batch.
func (m *MetricsRecorder) RecordBatch(evaluated, affected int) {
	itemsEvaluated.Observe(float64(evaluated))
	itemsAffected.Observe(float64(affected))
}

// RecordExcludedRules records rules dropped at load time.
func (m *MetricsRecorder) RecordExcludedRules(count int) {
	rulesExcluded.Add(float64(count))
}

// RecordRejectedActions records actions skipped during application.
func (m *MetricsRecorder) RecordRejectedActions(count int) {
	actionsRejected.Add(float64(count))
}

// RecordPersistFailures records failed item writes.
func (m *MetricsRecorder) RecordPersistFailures(count int) {
	persistFailures.Add(float64(count))
}
