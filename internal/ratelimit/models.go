package ratelimit

import (
	"time"

	"peakform/internal/docstore"
)

// Record is the decoded counter document for one (limit, subject) key.
type Record struct {
	Count       int64
	WindowStart time.Time
}

// Expired reports whether the record's window has lapsed as of now.
func (r Record) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStart) >= window
}

func recordFrom(doc docstore.Doc) Record {
	return Record{
		Count:       docstore.Int64(doc, "count"),
		WindowStart: time.Unix(docstore.Int64(doc, "windowStart"), 0),
	}
}

// Remaining is the read-only quota view returned by the limiter.
type Remaining struct {
	Remaining int64
	ResetAt   time.Time
}
