package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline collectors. Labels are drawn from closed enums to keep
// cardinality bounded.
var (
	reviewsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbuddy_reviews_processed_total",
			Help: "Reviews that completed the processing pipeline, by decision.",
		},
		[]string{"decision"},
	)

	fallbackAssessments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewbuddy_risk_assessment_fallbacks_total",
			Help: "Risk assessments replaced by the conservative fallback.",
		},
	)

	pipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbuddy_pipeline_failures_total",
			Help: "Processing runs aborted, by the step that failed.",
		},
		[]string{"step"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbuddy_notifications_total",
			Help: "Notification attempts by channel and outcome.",
		},
		[]string{"channel", "status"},
	)

	llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbuddy_llm_calls_total",
			Help: "LLM calls by provider, purpose and outcome.",
		},
		[]string{"provider", "purpose", "outcome"},
	)

	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewbuddy_llm_call_duration_seconds",
			Help:    "LLM call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "purpose"},
	)

	processingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewbuddy_processing_duration_seconds",
			Help:    "Wall time of one full processing run.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
		},
	)

	reviewsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbuddy_reviews_imported_total",
			Help: "Reviews imported from the review platform, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		reviewsProcessed,
		fallbackAssessments,
		pipelineFailures,
		notificationsSent,
		llmCalls,
		llmLatency,
		processingDuration,
		reviewsImported,
	)
}
