// Package metrics holds the Prometheus collectors of the assessment engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Allocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_allocations_total",
			Help: "Module allocations by outcome",
		},
		[]string{"outcome"}, // full, partial, exhausted, invalid_config
	)

	AllocationDeficit = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_allocation_deficit_questions_total",
			Help: "Questions missing from allocations because topic pools ran short",
		},
	)

	AnswersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_answers_submitted_total",
			Help: "Submitted answers by session kind and correctness",
		},
		[]string{"kind", "correct"},
	)

	PointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_points_awarded_total",
			Help: "Points awarded by session kind",
		},
		[]string{"kind"},
	)

	ModulesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_modules_completed_total",
			Help: "Completed module runs by completion reason",
		},
		[]string{"reason"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_sessions_completed_total",
			Help: "Completed sessions by kind",
		},
		[]string{"kind"},
	)

	StaleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_stale_transitions_total",
			Help: "Rejected transitions by operation",
		},
		[]string{"op"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_store_retries_total",
			Help: "Retried store operations",
		},
		[]string{"op"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assessment_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware observes request latency labelled by the matched mux route
// template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
