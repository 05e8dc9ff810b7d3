// Package metrics exposes Prometheus collectors for the conversion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversionsTotal       *prometheus.CounterVec
	attemptsTotal          *prometheus.CounterVec
	attemptDurationSeconds *prometheus.HistogramVec
	activeJobs             prometheus.Gauge
	streamedBytesTotal     prometheus.Counter
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		conversionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavforce_conversions_total",
				Help: "Total conversion requests, labeled by final outcome.",
			},
			[]string{"outcome"},
		)

		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavforce_attempts_total",
				Help: "Total extraction attempts, labeled by profile and outcome.",
			},
			[]string{"profile", "outcome"},
		)

		attemptDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wavforce_attempt_duration_seconds",
				Help:    "Histogram of extraction attempt durations, labeled by profile.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"profile"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wavforce_active_jobs",
				Help: "Number of conversion jobs currently holding a workspace.",
			},
		)

		streamedBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wavforce_streamed_bytes_total",
				Help: "Total audio bytes streamed to callers.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveConversion increments the conversion counter for the final outcome.
func ObserveConversion(outcome string) {
	conversionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAttempt records one extraction attempt.
func ObserveAttempt(profile, outcome string, duration time.Duration) {
	attemptsTotal.WithLabelValues(profile, outcome).Inc()
	attemptDurationSeconds.WithLabelValues(profile).Observe(duration.Seconds())
}

// IncActiveJobs increments the active jobs gauge.
func IncActiveJobs() {
	activeJobs.Inc()
}

// DecActiveJobs decrements the active jobs gauge.
func DecActiveJobs() {
	activeJobs.Dec()
}

// ObserveStreamedBytes adds to the streamed byte counter.
func ObserveStreamedBytes(n int64) {
	if n > 0 {
		streamedBytesTotal.Add(float64(n))
	}
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed responses pass through to the underlying writer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
