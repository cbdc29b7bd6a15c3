package audit

import (
	"context"
	"log/slog"
)

// Recorder brackets admin operations: Begin opens an entry before the
// operation runs, FinalizeSuccess/FinalizeFailure close it after. Logging
// failures here must not fail the operation itself, so finalize errors are
// logged and swallowed; Begin errors are returned because an admin action
// without an open audit entry must not proceed.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a recorder over an audit store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Begin opens an audit entry and returns its ID.
func (r *Recorder) Begin(ctx context.Context, adminID, targetUserID, action, reason string, metadata map[string]any) (string, error) {
	return r.store.Append(ctx, &Entry{
		AdminID:      adminID,
		TargetUserID: targetUserID,
		Action:       action,
		Reason:       reason,
		Metadata:     metadata,
	})
}

// FinalizeSuccess marks the entry as completed successfully.
func (r *Recorder) FinalizeSuccess(ctx context.Context, entryID string) {
	if err := r.store.Finalize(ctx, entryID, OutcomeSuccess, ""); err != nil {
		r.logger.Error("audit finalize failed", "entry_id", entryID, "error", err)
	}
}

// FinalizeFailure marks the entry as failed with the operation's error.
func (r *Recorder) FinalizeFailure(ctx context.Context, entryID string, opErr error) {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	if err := r.store.Finalize(ctx, entryID, OutcomeFailure, msg); err != nil {
		r.logger.Error("audit finalize failed", "entry_id", entryID, "error", err)
	}
}
