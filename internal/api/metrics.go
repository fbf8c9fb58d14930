package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/store"
)

const unmatched = "unmatched"

// Submission outcomes for yieldlab_job_submissions_total.
const (
	outcomeAccepted           = "accepted"
	outcomeBadRequest         = "bad_request"
	outcomeDatasetNotFound    = "dataset_not_found"
	outcomeUnknownComputation = "unknown_computation"
	outcomeError              = "error"
)

// apiMetrics groups the HTTP-facing series. Request series are keyed by chi
// route pattern; submissions are keyed by computation name and outcome.
type apiMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	submissions *prometheus.CounterVec
}

var metrics = newAPIMetrics(prometheus.DefaultRegisterer)

func newAPIMetrics(reg prometheus.Registerer) *apiMetrics {
	m := &apiMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldlab_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yieldlab_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldlab_job_submissions_total",
			Help: "Job submissions received over HTTP by computation and outcome.",
		}, []string{"computation", "outcome"}),
	}
	reg.MustRegister(m.requests, m.duration, m.submissions)
	return m
}

// middleware records count and duration per route. The event stream is
// counted but not timed since its duration is the job's lifetime.
func (m *apiMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		if route != jobEventsRoute {
			m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// submission counts one POST /v1/jobs. Names that are not registered collapse
// into a single label value so clients cannot grow the series set.
func (m *apiMetrics) submission(computation string, err error) {
	outcome := outcomeAccepted
	switch {
	case err == nil:
	case errors.Is(err, errBadSubmission):
		outcome = outcomeBadRequest
	case errors.Is(err, store.ErrDatasetNotFound):
		outcome = outcomeDatasetNotFound
	case errors.Is(err, compute.ErrUnknownComputation):
		outcome = outcomeUnknownComputation
	default:
		outcome = outcomeError
	}
	if outcome == outcomeUnknownComputation || outcome == outcomeBadRequest {
		computation = unmatched
	}
	m.submissions.WithLabelValues(computation, outcome).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
