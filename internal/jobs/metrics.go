// Package jobs provides metrics for background job operations.
package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricBackgroundJobsTotal      = "cloudlog_background_jobs_total"
	MetricBackgroundJobsDuration   = "cloudlog_background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "cloudlog_background_job_errors_total"
)

// Job type constants for labeling.
const (
	JobTypeSnapshot = "snapshot"
)

// Status constants for job completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for background job operations.
// All operations are thread-safe. A nil *Metrics records nothing.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobsTotal,
				Help: "Total number of background job executions by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBackgroundJobsDuration,
				Help:    "Histogram of background job duration in seconds by job type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobErrorsTotal,
				Help: "Total number of background job errors by type and error type",
			},
			[]string{"job_type", "error_type"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one finished run of jobType that started at start.
// A non-empty errorType marks the run as failed.
func (m *Metrics) Observe(jobType string, start time.Time, errorType string) {
	if m == nil {
		return
	}
	m.jobsDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
	if errorType != "" {
		m.jobsTotal.WithLabelValues(jobType, StatusFailure).Inc()
		m.jobErrors.WithLabelValues(jobType, errorType).Inc()
		return
	}
	m.jobsTotal.WithLabelValues(jobType, StatusSuccess).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.jobErrors,
	}
}
