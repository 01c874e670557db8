// Package metrics exposes Prometheus instrumentation for the scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for storyforge
type Metrics struct {
	// Dispatch metrics, labelled by stage.
	Dispatches    *prometheus.CounterVec
	StageOutcomes *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Retries       *prometheus.CounterVec
	DeadLetters   *prometheus.CounterVec

	// Budget metrics, labelled by window.
	BudgetDenials  *prometheus.CounterVec
	BudgetWaitTime *prometheus.HistogramVec
	TokensAdmitted prometheus.Counter
	TokensActual   prometheus.Counter

	// Batch metrics.
	BatchDuration   prometheus.Histogram
	BatchStories    prometheus.Histogram
	StoryFinalState *prometheus.CounterVec
}

// NewMetrics creates metrics registered with the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Total jobs handed to pipeline stage queues",
		}, []string{"stage"}),

		StageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "stage_outcomes_total",
			Help:      "Stage job outcomes by result",
		}, []string{"stage", "outcome"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of stage jobs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),

		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Retries scheduled, by failure class",
		}, []string{"stage", "class"}),

		DeadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "dead_letters_total",
			Help:      "Jobs dead-lettered after exhausting retries",
		}, []string{"stage"}),

		BudgetDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "budget",
			Name:      "denials_total",
			Help:      "Admissions denied with a retry hint, by window",
		}, []string{"window"}),

		BudgetWaitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "budget",
			Name:      "wait_seconds",
			Help:      "Retry-after hints returned by the governor",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"window"}),

		TokensAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "budget",
			Name:      "tokens_admitted_total",
			Help:      "Estimated tokens charged at admission",
		}),

		TokensActual: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "budget",
			Name:      "tokens_actual_total",
			Help:      "Actual tokens reported by pipeline stages",
		}),

		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "batch_duration_seconds",
			Help:      "End-to-end duration of batch scheduling runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),

		BatchStories: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "batch_stories",
			Help:      "Stories per submitted batch",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),

		StoryFinalState: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "scheduler",
			Name:      "story_final_states_total",
			Help:      "Per-story terminal outcomes",
		}, []string{"state"}),
	}
}
