package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/yieldlab/internal/model"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yieldlab_jobs_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"computation", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yieldlab_job_duration_seconds",
			Help:    "Computation run time from the running transition to the terminal one, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"computation"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "yieldlab_jobs_active",
			Help: "Number of jobs admitted but not yet finished.",
		},
	)

	transitionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "yieldlab_job_transition_errors_total",
			Help: "Status transitions rejected by the job store.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(transitionErrors)
}

// preinitMetrics creates the counter series for name so they appear in
// /metrics with value 0 before the first job finishes.
func preinitMetrics(name string) {
	jobsTotal.WithLabelValues(name, model.StatusCompleted)
	jobsTotal.WithLabelValues(name, model.StatusFailed)
}
