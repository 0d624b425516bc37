package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const jobLabel = "job"

// CronJobMetrics tracks execution counts and timings for scheduled jobs. The
// zero value is a no-op so workers can run without a registerer wired.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of scheduled job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{jobLabel}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "cron",
			Name:      "job_success_total",
			Help:      "Scheduled job runs that completed without error.",
		}, []string{jobLabel}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "cron",
			Name:      "job_failure_total",
			Help:      "Scheduled job runs that returned an error.",
		}, []string{jobLabel}),
	}
	reg.MustRegister(m.duration, m.success, m.failure)
	return m
}

func (m *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(labelOr(job)).Observe(d.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(labelOr(job)).Inc()
}

func (m *CronJobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(labelOr(job)).Inc()
}
