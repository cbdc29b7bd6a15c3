package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the limiter's prometheus instruments.
type Metrics struct {
	ChecksTotal            *prometheus.CounterVec
	RejectionsTotal        *prometheus.CounterVec
	FailOpenTotal          prometheus.Counter
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupDeletedTotal    prometheus.Counter
	CleanupDurationSeconds prometheus.Histogram
}

// NewMetrics registers the limiter metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peakform_ratelimit_checks_total",
			Help: "Total number of rate limit checks, by limit name",
		}, []string{"limit"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peakform_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter, by limit name",
		}, []string{"limit"}),
		FailOpenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peakform_ratelimit_fail_open_total",
			Help: "Total number of checks allowed because the counter store was unreachable",
		}),
		CleanupRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peakform_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDeletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peakform_ratelimit_cleanup_deleted_total",
			Help: "Total number of expired rate limit records deleted by cleanup",
		}),
		CleanupDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "peakform_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}
