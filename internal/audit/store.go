package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"peakform/internal/docstore"
	"peakform/internal/sentinel"
	"peakform/pkg/requestcontext"
)

const collection = "audit_log"

// Store persists audit entries in the document store. Finalize is guarded by
// a transaction so an entry can reach a terminal state only once.
type Store struct {
	docs docstore.Store
}

// NewStore creates an audit store over the given document store.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// Append opens a new entry. A zero StartedAt is stamped with the request
// clock; a missing ID gets a fresh UUID. Returns the entry ID.
func (s *Store) Append(ctx context.Context, entry *Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = requestcontext.Now(ctx)
	}
	if err := s.docs.Set(ctx, collection, entry.ID, toDoc(entry)); err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	return entry.ID, nil
}

// Finalize closes an entry with its outcome. Finalizing an already-finalized
// entry fails with sentinel.ErrInvalidState and leaves the stored outcome
// untouched.
func (s *Store) Finalize(ctx context.Context, id string, outcome Outcome, errMsg string) error {
	err := s.docs.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(collection, id)
		if err != nil {
			return err
		}
		if docstore.String(doc, "outcome") != "" {
			return fmt.Errorf("audit entry %s already finalized: %w", id, sentinel.ErrInvalidState)
		}
		return tx.Update(collection, id, docstore.Doc{
			"completedAt": requestcontext.Now(ctx).Format(time.RFC3339Nano),
			"outcome":     string(outcome),
			"error":       errMsg,
		})
	})
	if err != nil {
		return fmt.Errorf("finalize audit entry: %w", err)
	}
	return nil
}

// Get returns a single entry by ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	doc, err := s.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return fromDoc(id, doc), nil
}

// ListByAdmin returns the most recent entries opened by one admin.
func (s *Store) ListByAdmin(ctx context.Context, adminID string, limit int) ([]Entry, error) {
	return s.list(ctx, []docstore.Filter{
		{Field: "adminId", Op: "==", Value: adminID},
	}, limit)
}

// ListRecent returns the most recent entries across all admins.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return s.list(ctx, nil, limit)
}

// list fetches matching entries and orders them newest first. The store port
// has no server-side ordering, so sorting happens here; the fetch is
// unbounded but audit listings are an admin surface, not a hot path.
func (s *Store) list(ctx context.Context, filters []docstore.Filter, limit int) ([]Entry, error) {
	snaps, err := s.docs.Query(ctx, collection, filters, 0)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]Entry, 0, len(snaps))
	for _, snap := range snaps {
		entries = append(entries, *fromDoc(snap.ID, snap.Data))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func toDoc(e *Entry) docstore.Doc {
	doc := docstore.Doc{
		"adminId":      e.AdminID,
		"targetUserId": e.TargetUserID,
		"action":       e.Action,
		"reason":       e.Reason,
		"startedAt":    e.StartedAt.Format(time.RFC3339Nano),
		"outcome":      string(e.Outcome),
		"error":        e.Error,
	}
	if e.Metadata != nil {
		doc["metadata"] = e.Metadata
	}
	if !e.CompletedAt.IsZero() {
		doc["completedAt"] = e.CompletedAt.Format(time.RFC3339Nano)
	}
	return doc
}

func fromDoc(id string, doc docstore.Doc) *Entry {
	entry := &Entry{
		ID:           id,
		AdminID:      docstore.String(doc, "adminId"),
		TargetUserID: docstore.String(doc, "targetUserId"),
		Action:       docstore.String(doc, "action"),
		Reason:       docstore.String(doc, "reason"),
		StartedAt:    docstore.Time(doc, "startedAt"),
		CompletedAt:  docstore.Time(doc, "completedAt"),
		Outcome:      Outcome(docstore.String(doc, "outcome")),
		Error:        docstore.String(doc, "error"),
	}
	if meta, ok := doc["metadata"].(map[string]any); ok {
		entry.Metadata = meta
	}
	return entry
}
