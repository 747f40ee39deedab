package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmaker_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playmaker_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	movesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playmaker_moves_created_total",
		Help: "Moves created through the factory.",
	})

	moveTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmaker_move_transitions_total",
		Help: "Move lifecycle transitions by resulting state.",
	}, []string{"state"})

	recommendationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playmaker_recommendation_timeouts_total",
		Help: "Recommendation requests that exceeded the latency budget.",
	})

	recommendationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playmaker_recommendation_duration_seconds",
		Help:    "Recommendation generation latency.",
		Buckets: prometheus.DefBuckets,
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrumentHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		httpRequests.WithLabelValues(req.Method, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	})
}
