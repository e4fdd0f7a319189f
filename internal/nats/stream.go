package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/folioworks/portfolio-assistant/internal/model"
)

const (
	// StreamName is the name of the chat audit stream.
	StreamName = "CHAT_TURNS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// StreamManager publishes chat messages and run events to JetStream for
// downstream consumers. Publishing is best effort; a publish failure
// never fails a turn.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	// Create stream
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat messages and run events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(chatID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, chatID, role)
}

// RunEventSubject returns the subject for a run event.
func RunEventSubject(chatID string, state model.RunState) string {
	return fmt.Sprintf("%s.%s.run.%s", SubjectPrefix, chatID, state)
}

// PublishMessage publishes a message to JetStream.
func (m *StreamManager) PublishMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, MessageSubject(msg.ChatID, msg.Role), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// RunEvent is the audit payload for one terminal run state.
type RunEvent struct {
	ChatID    string         `json:"chat_id"`
	UserID    string         `json:"user_id"`
	State     model.RunState `json:"state"`
	Reason    string         `json:"reason,omitempty"`
	Usage     model.Usage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at"`
}

// PublishRunEvent publishes a run event to JetStream.
func (m *StreamManager) PublishRunEvent(ctx context.Context, event *RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, RunEventSubject(event.ChatID, event.State), data); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	return nil
}
