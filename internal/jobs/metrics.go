// Package jobmetrics exports Prometheus collectors for the worker.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one task run.
const (
	StatusSuccess = "success"
	// StatusRetry means asynq will run the task again.
	StatusRetry = "retry"
	// StatusDropped means the task failed with asynq.SkipRetry.
	StatusDropped = "dropped"
)

// Metrics holds the worker collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	logFailures prometheus.Counter
}

// NewMetrics registers the collectors on registerer. A nil registerer
// returns nil, which disables recording.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldserve_jobs_total",
			Help: "Task runs by task type and outcome (success, retry, dropped).",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldserve_job_duration_seconds",
			Help:    "Task handler duration in seconds.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"job"}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldserve_delivery_log_failures_total",
			Help: "Delivery records that could not be appended to the Redis log.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.logFailures)
	return m
}

// Tracker times one task run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	t.metrics.runs.WithLabelValues(t.job, statusOf(err)).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// LogWriteFailed counts a delivery record lost to a Redis error.
func (m *Metrics) LogWriteFailed() {
	if m == nil {
		return
	}
	m.logFailures.Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDropped
	default:
		return StatusRetry
	}
}
