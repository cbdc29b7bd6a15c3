package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"peakform/internal/platform/kafka/producer"
	"peakform/pkg/requestcontext"
)

// Security event types emitted by the gates.
const (
	EventForcedLogoutRejection = "forced_logout_rejection"
	EventCSRFRejection         = "csrf_rejection"
	EventAdminLevelChange      = "admin_level_change"
	EventSessionsRevoked       = "sessions_revoked"
	EventReauthRequired        = "reauth_required"
)

// SecurityEvent is one security-relevant occurrence: a rejected request, a
// privilege change, a session revocation.
type SecurityEvent struct {
	Type      string         `json:"type"`
	SubjectID string         `json:"subject_id,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	At        time.Time      `json:"at"`
}

// Forwarder publishes security events to an external sink.
type Forwarder interface {
	Publish(ctx context.Context, msg producer.Message) error
}

// SecurityEvents is the security event channel: every event lands in the
// structured log tagged log_type=security, and is optionally forwarded to
// Kafka. Recording never fails the request that triggered it.
type SecurityEvents struct {
	logger    *slog.Logger
	forwarder Forwarder
	topic     string
}

// SecurityOption configures the security event channel.
type SecurityOption func(*SecurityEvents)

// WithForwarder enables forwarding events to the given sink and topic.
func WithForwarder(f Forwarder, topic string) SecurityOption {
	return func(s *SecurityEvents) {
		s.forwarder = f
		s.topic = topic
	}
}

// NewSecurityEvents creates the channel. Without a forwarder events only go
// to the log.
func NewSecurityEvents(logger *slog.Logger, opts ...SecurityOption) *SecurityEvents {
	s := &SecurityEvents{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record emits one security event.
func (s *SecurityEvents) Record(ctx context.Context, event SecurityEvent) {
	if event.At.IsZero() {
		event.At = requestcontext.Now(ctx)
	}

	attrs := []any{
		"log_type", "security",
		"event_type", event.Type,
	}
	if event.SubjectID != "" {
		attrs = append(attrs, "subject_id", event.SubjectID)
	}
	if event.Detail != "" {
		attrs = append(attrs, "detail", event.Detail)
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	s.logger.Warn("security event", attrs...)

	if s.forwarder == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("security event marshal failed", "event_type", event.Type, "error", err)
		return
	}
	if err := s.forwarder.Publish(ctx, producer.Message{
		Topic: s.topic,
		Key:   []byte(event.SubjectID),
		Value: payload,
	}); err != nil {
		s.logger.Error("security event forward failed", "event_type", event.Type, "error", err)
	}
}
