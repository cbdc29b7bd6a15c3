package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"peakform/internal/docstore"
	"peakform/internal/sentinel"
	dErrors "peakform/pkg/domain-errors"
	"peakform/pkg/requestcontext"
)

const collection = "rate_limits"

// cleanupBatchSize bounds each query/delete round so a sweep never holds
// the store for long.
const cleanupBatchSize = 500

// errLimitExceeded aborts the check transaction without persisting the
// over-limit increment.
var errLimitExceeded = errors.New("rate limit exceeded")

// Limiter enforces the named quotas in Limits.
type Limiter struct {
	docs    docstore.Store
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures the limiter.
type Option func(*Limiter)

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLimiter creates a limiter over the given document store.
func NewLimiter(docs docstore.Store, opts ...Option) *Limiter {
	l := &Limiter{docs: docs, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check consumes one request from the named quota. Under the limit it
// increments and allows; over it, the transaction aborts with no write and
// the caller gets a rate-limited error. An unreachable counter store fails
// open with a logged fault; the rate-limited rejection itself is never
// converted into an allow.
func (l *Limiter) Check(ctx context.Context, limitName, key string) error {
	limit, err := limitFor(limitName)
	if err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.ChecksTotal.WithLabelValues(limitName).Inc()
	}

	id := recordID(limitName, key)
	now := requestcontext.Now(ctx)

	err = l.docs.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(collection, id)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return tx.Set(collection, id, freshRecord(now))
		case err != nil:
			return err
		}

		rec := recordFrom(doc)
		if rec.Expired(now, limit.Window) {
			return tx.Set(collection, id, freshRecord(now))
		}

		if rec.Count >= int64(limit.MaxRequests) {
			return errLimitExceeded
		}
		return tx.Update(collection, id, docstore.Doc{"count": rec.Count + 1})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errLimitExceeded):
		if l.metrics != nil {
			l.metrics.RejectionsTotal.WithLabelValues(limitName).Inc()
		}
		return dErrors.New(dErrors.CodeRateLimited, "too many requests, please try again later")
	case errors.Is(err, sentinel.ErrUnavailable):
		l.logger.Error("counter store unreachable, allowing request",
			"limit", limitName,
			"error", err,
		)
		if l.metrics != nil {
			l.metrics.FailOpenTotal.Inc()
		}
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}
}

// Remaining reports the quota left for a key without consuming any. A
// missing or expired window reads as full quota.
func (l *Limiter) Remaining(ctx context.Context, limitName, key string) (*Remaining, error) {
	limit, err := limitFor(limitName)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	full := &Remaining{Remaining: int64(limit.MaxRequests), ResetAt: now.Add(limit.Window)}

	doc, err := l.docs.Get(ctx, collection, recordID(limitName, key))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return full, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read rate limit state")
	}

	rec := recordFrom(doc)
	if rec.Expired(now, limit.Window) {
		return full, nil
	}

	remaining := int64(limit.MaxRequests) - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return &Remaining{Remaining: remaining, ResetAt: rec.WindowStart.Add(limit.Window)}, nil
}

// Reset drops the counter for a key. Resetting an absent key is a no-op.
func (l *Limiter) Reset(ctx context.Context, limitName, key string) error {
	err := l.docs.Delete(ctx, collection, recordID(limitName, key))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not reset rate limit")
	}
	return nil
}

// Cleanup deletes records whose window expired more than maxAge ago, in
// bounded batches, and returns how many were removed. Live windows are
// never touched, so a sweep racing a Check is harmless.
func (l *Limiter) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-maxAge).Unix()
	total := 0

	for {
		snaps, err := l.docs.Query(ctx, collection, []docstore.Filter{
			{Field: "windowStart", Op: "<", Value: cutoff},
		}, cleanupBatchSize)
		if err != nil {
			return total, fmt.Errorf("query expired rate limits: %w", err)
		}
		if len(snaps) == 0 {
			return total, nil
		}

		ids := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			ids = append(ids, snap.ID)
		}
		deleted, err := l.docs.BatchDelete(ctx, collection, ids)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("delete expired rate limits: %w", err)
		}
		if len(snaps) < cleanupBatchSize {
			return total, nil
		}
	}
}

func freshRecord(now time.Time) docstore.Doc {
	return docstore.Doc{
		"count":       int64(1),
		"windowStart": now.Unix(),
	}
}
