package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "printdesk"

// CronJobMetrics tracks the scheduled jobs. The last-success gauge lets an
// alert fire when absence marking stops running for a day.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers on reg; nil reg gives a recorder that drops
// everything.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "cron", Name: name, Help: help}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts(opts("job_runs_total",
			"Cron job runs by outcome.")), []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of one cron job run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 7),
		}, []string{"job"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts(opts("job_rows_affected_total",
			"Attendance rows written or outbox rows deleted by cron jobs.")), []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts(opts("job_last_success_timestamp_seconds",
			"Unix time of the last successful run.")), []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.rows, m.lastSuccess)
	return m
}

// Observe records one finished run.
func (m *CronJobMetrics) Observe(job string, took time.Duration, affected int64, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	if affected > 0 {
		m.rows.WithLabelValues(job).Add(float64(affected))
	}
}
