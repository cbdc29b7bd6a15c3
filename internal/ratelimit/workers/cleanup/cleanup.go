// Package cleanup runs the periodic sweep that garbage-collects rate limit
// records whose window has long expired.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"peakform/internal/ratelimit"
)

// Sweeper is the slice of the limiter this worker drives.
type Sweeper interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// Option configures the worker.
type Option func(*Worker)

// WithInterval overrides how often the sweep runs, when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithMaxAge overrides how long an expired window lingers before deletion,
// when greater than zero.
func WithMaxAge(maxAge time.Duration) Option {
	return func(w *Worker) {
		if maxAge > 0 {
			w.maxAge = maxAge
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics attaches the limiter's prometheus instruments.
func WithMetrics(m *ratelimit.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// Worker periodically sweeps expired rate limit records.
type Worker struct {
	sweeper  Sweeper
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	metrics  *ratelimit.Metrics
}

// New constructs a worker with defaults: sweep every 15 minutes, delete
// windows expired for over 24 hours.
func New(sweeper Sweeper, opts ...Option) *Worker {
	w := &Worker{
		sweeper:  sweeper,
		interval: 15 * time.Minute,
		maxAge:   24 * time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the sweep loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			deleted, err := w.sweeper.Cleanup(ctx, w.maxAge)
			duration := time.Since(start)

			if err != nil {
				w.logger.Error("ratelimit_cleanup_failed",
					"error", err,
					"deleted", deleted,
					"duration_ms", duration.Milliseconds(),
				)
				if w.metrics != nil {
					w.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
					w.metrics.CleanupDurationSeconds.Observe(duration.Seconds())
				}
				continue
			}

			w.logger.Info("ratelimit_cleanup_completed",
				"deleted", deleted,
				"duration_ms", duration.Milliseconds(),
			)
			if w.metrics != nil {
				w.metrics.CleanupDeletedTotal.Add(float64(deleted))
				w.metrics.CleanupRunsTotal.WithLabelValues("success").Inc()
				w.metrics.CleanupDurationSeconds.Observe(duration.Seconds())
			}

		case <-ctx.Done():
			w.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}
