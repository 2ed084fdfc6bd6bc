// Package observability registers the service's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mergeDecisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "sync",
		Name:      "merge_decisions_total",
		Help:      "Merge detector outcomes by confidence bucket.",
	}, []string{"confidence"})

	syncLockContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "sync",
		Name:      "lock_contention_total",
		Help:      "Sync passes aborted because another sync held the athlete lock.",
	})

	activitiesIngestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "sync",
		Name:      "activities_ingested_total",
		Help:      "Activities ingested from bridge imports by source.",
	}, []string{"source"})

	workoutMatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "matching",
		Name:      "workouts_matched_total",
		Help:      "Activity-to-workout links created, labeled by method.",
	}, []string{"method"})

	operationsAppliedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "plan",
		Name:      "operations_applied_total",
		Help:      "Plan operations applied, labeled by operation type.",
	}, []string{"operation"})

	fallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingplan",
		Subsystem: "plan",
		Name:      "refine_fallbacks_total",
		Help:      "Refinement requests routed to full plan regeneration.",
	})

	planModifiedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingplan",
		Subsystem: "plan",
		Name:      "last_modified_timestamp_seconds",
		Help:      "Unix timestamp of the most recent plan mutation.",
	})
)

func init() {
	prometheus.MustRegister(
		mergeDecisionCounter,
		syncLockContentionCounter,
		activitiesIngestedCounter,
		workoutMatchCounter,
		operationsAppliedCounter,
		fallbackCounter,
		planModifiedGauge,
	)
}

// RecordMergeDecision counts a merge detector outcome.
func RecordMergeDecision(confidence string) {
	mergeDecisionCounter.WithLabelValues(confidence).Inc()
}

// RecordSyncLockContention counts an aborted sync pass.
func RecordSyncLockContention() {
	syncLockContentionCounter.Inc()
}

// RecordActivityIngested counts a bridge import by source.
func RecordActivityIngested(source string) {
	activitiesIngestedCounter.WithLabelValues(source).Inc()
}

// RecordWorkoutMatched counts a created link by method.
func RecordWorkoutMatched(method string) {
	workoutMatchCounter.WithLabelValues(method).Inc()
}

// RecordOperationApplied counts one applied plan operation.
func RecordOperationApplied(operation string) {
	operationsAppliedCounter.WithLabelValues(operation).Inc()
}

// RecordFallback counts a refinement request handed to regeneration.
func RecordFallback() {
	fallbackCounter.Inc()
}

// RecordPlanModified updates the plan mutation watermark.
func RecordPlanModified(ts time.Time) {
	if ts.IsZero() {
		return
	}
	planModifiedGauge.Set(float64(ts.Unix()))
}
