package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/platform/kafka/producer"
)

type captureForwarder struct {
	messages []producer.Message
}

func (c *captureForwarder) Publish(_ context.Context, msg producer.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestSecurityEvents_LogsAndForwards(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	forwarder := &captureForwarder{}
	events := NewSecurityEvents(logger, WithForwarder(forwarder, "peakform.security-events"))

	events.Record(context.Background(), SecurityEvent{
		Type:      EventCSRFRejection,
		SubjectID: "user-1",
		Detail:    "origin not allowed",
		Fields:    map[string]any{"origin": "https://evil.example"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "security", line["log_type"])
	assert.Equal(t, EventCSRFRejection, line["event_type"])
	assert.Equal(t, "https://evil.example", line["origin"])

	require.Len(t, forwarder.messages, 1)
	msg := forwarder.messages[0]
	assert.Equal(t, "peakform.security-events", msg.Topic)
	assert.Equal(t, "user-1", string(msg.Key))

	var payload SecurityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, EventCSRFRejection, payload.Type)
	assert.False(t, payload.At.IsZero())
}

func TestSecurityEvents_NoForwarderStillLogs(t *testing.T) {
	var buf bytes.Buffer
	events := NewSecurityEvents(slog.New(slog.NewJSONHandler(&buf, nil)))

	events.Record(context.Background(), SecurityEvent{Type: EventSessionsRevoked, SubjectID: "user-2"})

	assert.Contains(t, buf.String(), EventSessionsRevoked)
}
