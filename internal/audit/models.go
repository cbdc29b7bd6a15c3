// Package audit records administrative actions and security-relevant events.
// The action log is append-only: entries open when an admin operation starts
// and are finalized exactly once with the outcome. Security events are a
// separate channel for rejections and privilege changes.
package audit

import "time"

// Outcome is the terminal state of an audit entry.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one administrative action in the audit log.
type Entry struct {
	ID           string         `json:"id"`
	AdminID      string         `json:"admin_id"`
	TargetUserID string         `json:"target_user_id,omitempty"`
	Action       string         `json:"action"`
	Reason       string         `json:"reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at,omitzero"`
	Outcome      Outcome        `json:"outcome,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Finalized reports whether the entry has reached a terminal state.
func (e *Entry) Finalized() bool {
	return e.Outcome != ""
}
