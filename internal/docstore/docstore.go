// Package docstore defines the document-store port used for rate-limit
// counters, per-user trust state, and audit records. Implementations must
// provide per-document atomic transactions: every read-modify-write in this
// codebase runs inside RunTransaction, and a conflicting transaction is
// retried by the store, not by callers.
package docstore

import (
	"context"
	"time"
)

// Doc is a single document's field set.
type Doc map[string]any

// Snapshot pairs a document with its identifier, as returned by queries.
type Snapshot struct {
	ID   string
	Data Doc
}

// Filter is a single field predicate for Query.
type Filter struct {
	Field string
	Op    string // one of "==", "<", "<=", ">", ">="
	Value any
}

// Tx is the store view inside RunTransaction. Reads observe committed state;
// writes are applied atomically when the transaction commits.
type Tx interface {
	Get(collection, id string) (Doc, error)
	Set(collection, id string, doc Doc) error
	Update(collection, id string, fields Doc) error
	Delete(collection, id string) error
}

// Store is the document-store port.
//
// Get returns sentinel.ErrNotFound for missing documents. Update merges
// fields into an existing document and fails with sentinel.ErrNotFound if it
// does not exist. Infrastructure faults surface as sentinel.ErrUnavailable
// (wrapped) so callers can decide their fail-open/fail-closed posture.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, doc Doc) error
	Update(ctx context.Context, collection, id string, fields Doc) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Snapshot, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	BatchDelete(ctx context.Context, collection string, ids []string) (int, error)
}

// Int64 reads a numeric field, tolerating the numeric widenings JSON
// round-trips introduce.
func Int64(doc Doc, field string) int64 {
	switch v := doc[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// String reads a string field, or "" when absent or mistyped.
func String(doc Doc, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}

// Bool reads a boolean field, or false when absent or mistyped.
func Bool(doc Doc, field string) bool {
	if v, ok := doc[field].(bool); ok {
		return v
	}
	return false
}

// Time reads a timestamp field stored either natively or as RFC 3339 text.
// Returns the zero time when absent or unparseable.
func Time(doc Doc, field string) time.Time {
	switch v := doc[field].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Clone deep-copies a document one level down. Nested maps are shared; the
// store schema keeps documents flat, so this is sufficient isolation.
func Clone(doc Doc) Doc {
	if doc == nil {
		return nil
	}
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
