// Package ratelimit implements fixed-window rate limiting over the document
// store. One record per (limit, subject) key; the window is reset, not slid,
// once it expires. All read-modify-write runs inside a store transaction, so
// concurrent checks across processes never lose an increment.
package ratelimit

import (
	"fmt"
	"time"
)

// Limit is one named quota: at most MaxRequests per Window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Limits is the registry of named quotas, the single source of truth for
// both enforcement and the remaining-quota endpoint.
var Limits = map[string]Limit{
	"signup":         {MaxRequests: 5, Window: time.Hour},
	"login":          {MaxRequests: 10, Window: 15 * time.Minute},
	"profile_update": {MaxRequests: 20, Window: time.Hour},
	"workout_upload": {MaxRequests: 60, Window: time.Hour},
	"data_export":    {MaxRequests: 3, Window: 24 * time.Hour},
	"admin_action":   {MaxRequests: 100, Window: time.Hour},
}

// limitFor resolves a registry name; unknown names are programmer error and
// fail loudly rather than defaulting to some quota.
func limitFor(name string) (Limit, error) {
	limit, ok := Limits[name]
	if !ok {
		return Limit{}, fmt.Errorf("unknown rate limit %q", name)
	}
	return limit, nil
}
