package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question outcome labels.
const (
	StatusAnswered = "answered"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

var (
	questionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formfiller",
			Name:      "questions_total",
			Help:      "Form questions processed, by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	llmRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formfiller",
			Name:      "llm_request_seconds",
			Help:      "Latency of chat completion calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formfiller",
			Name:      "submissions_total",
			Help:      "Form submissions, by result",
		},
		[]string{"status"},
	)
)

// ObserveQuestion counts a processed question.
func ObserveQuestion(provider, status string) {
	questionsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveLLMLatency records a chat completion round trip in seconds.
func ObserveLLMLatency(provider string, seconds float64) {
	llmRequestSeconds.WithLabelValues(provider).Observe(seconds)
}

// ObserveSubmission counts a form submission attempt ("ok" or "error").
func ObserveSubmission(status string) {
	submissionsTotal.WithLabelValues(status).Inc()
}
