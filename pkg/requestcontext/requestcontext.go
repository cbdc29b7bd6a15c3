// Package requestcontext carries request-scoped values through context:
// the request correlation ID, the resolved subject, and the request clock.
//
// The clock indirection exists so time-window logic (rate limiting,
// re-authentication recency) is deterministic under test: handlers read
// time through Now(ctx) and tests install a fixed or advancing clock.
package requestcontext

import (
	"context"
	"time"
)

type contextKey int

const (
	keyRequestID contextKey = iota
	keySubjectID
	keyClock
)

// Clock returns the current time. Installed per-request; defaults to time.Now.
type Clock func() time.Time

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID retrieves the request correlation ID, or "" if unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithSubjectID stores the authenticated subject identifier in the context.
func WithSubjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySubjectID, id)
}

// SubjectID retrieves the authenticated subject identifier, or "" if unset.
func SubjectID(ctx context.Context) string {
	if v, ok := ctx.Value(keySubjectID).(string); ok {
		return v
	}
	return ""
}

// WithClock installs a clock override for this request.
func WithClock(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, keyClock, clock)
}

// Now reads the request clock, falling back to time.Now.
func Now(ctx context.Context) time.Time {
	if clock, ok := ctx.Value(keyClock).(Clock); ok && clock != nil {
		return clock()
	}
	return time.Now()
}
