package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	submissionsTotal   *prometheus.CounterVec
	quizAttemptsTotal  *prometheus.CounterVec
	overridesTotal     *prometheus.CounterVec
	codeRunsTotal      *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the course API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_http_requests_total",
			Help: "API requests served, by surface (student or instructor).",
		}, []string{"surface", "method", "route", "status"})

		// Code runs block on the sandbox, so the upper buckets go past the usual 2s.
		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "course_http_latency_seconds",
			Help:    "Latency distribution for API requests, by surface.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10, 30},
		}, []string{"surface", "method", "route"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_submissions_total",
			Help: "Graded work submissions by kind and grading outcome.",
		}, []string{"kind", "outcome"})

		quizAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_quiz_attempts_total",
			Help: "Quiz attempts by outcome (accepted or the rejection reason).",
		}, []string{"outcome"})

		overridesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_overrides_total",
			Help: "Instructor override actions by action.",
		}, []string{"action"})

		codeRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_code_runs_total",
			Help: "Sandbox runs by outcome.",
		}, []string{"outcome"})

		rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_rate_limited_total",
			Help: "Requests rejected by the token bucket, by route.",
		}, []string{"route"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds,
			submissionsTotal, quizAttemptsTotal, overridesTotal, codeRunsTotal, rateLimitedTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Submissions exposes the graded-work submission counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// QuizAttempts exposes the quiz attempt counter.
func QuizAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return quizAttemptsTotal
}

// Overrides exposes the instructor override counter.
func Overrides() *prometheus.CounterVec {
	RegisterMetrics()
	return overridesTotal
}

// CodeRuns exposes the sandbox run counter.
func CodeRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return codeRunsTotal
}

// RateLimited exposes the rate-limit rejection counter.
func RateLimited() *prometheus.CounterVec {
	RegisterMetrics()
	return rateLimitedTotal
}
