package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GenerationAttempts counts generation attempts by failure kind ("none" on success).
	GenerationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizzer_generation_attempts_total",
			Help: "Question generation attempts by outcome",
		},
		[]string{"failure"},
	)

	// GenerationBatches counts generation calls by final status.
	GenerationBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizzer_generation_batches_total",
			Help: "Question generation calls by final status",
		},
		[]string{"status"},
	)

	// RejectedQuestions counts generated or imported questions that failed validation.
	RejectedQuestions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizzer_rejected_questions_total",
			Help: "Candidate questions rejected by validation",
		},
	)

	// Answers counts scored answers by correctness.
	Answers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizzer_answers_total",
			Help: "Scored quiz answers",
		},
		[]string{"correct"},
	)

	// QuizzesStarted counts created sessions by question source.
	QuizzesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizzer_quizzes_started_total",
			Help: "Quiz sessions created",
		},
		[]string{"source"},
	)

	// QuizzesFinished counts finalized sessions.
	QuizzesFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizzer_quizzes_finished_total",
			Help: "Quiz sessions finalized into results",
		},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "route"},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		GenerationAttempts,
		GenerationBatches,
		RejectedQuestions,
		Answers,
		QuizzesStarted,
		QuizzesFinished,
		RequestCounter,
		RequestDuration,
	)
}

// Middleware records request counts and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registered collectors of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
