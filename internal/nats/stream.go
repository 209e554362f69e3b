package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/soulproof/chat-server/internal/model"
)

// SubjectPrefix is the prefix for all audit subjects.
const SubjectPrefix = "chat"

// TurnRecord is the audit payload for a stored turn.
type TurnRecord struct {
	ConversationID string     `json:"conversation_id"`
	Mode           string     `json:"mode"`
	UserID         string     `json:"user_id"`
	Turn           model.Turn `json:"turn"`
}

// StreamManager publishes turns and conversation events to an append-only
// JetStream stream.
type StreamManager struct {
	client *Client
	stream string
}

// NewStreamManager creates a new stream manager for the named stream.
func NewStreamManager(client *Client, stream string) *StreamManager {
	return &StreamManager{client: client, stream: stream}
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, m.stream)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        m.stream,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Chat turns and conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// TurnSubject returns the subject for a turn.
func TurnSubject(mode, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.turn.%s", SubjectPrefix, mode, conversationID, role)
}

// EventSubject returns the subject for an event.
func EventSubject(mode, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, mode, conversationID, eventType)
}

// ConversationFilter returns the filter subject for everything recorded
// about a conversation.
func ConversationFilter(mode, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, mode, conversationID)
}

// PublishTurn publishes a stored turn.
func (m *StreamManager) PublishTurn(ctx context.Context, conv *model.Conversation, turn *model.Turn) error {
	data, err := json.Marshal(TurnRecord{
		ConversationID: conv.ID,
		Mode:           conv.Mode,
		UserID:         conv.UserID,
		Turn:           *turn,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, TurnSubject(conv.Mode, conv.ID, turn.Role), data); err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	return nil
}

// PublishEvent publishes a conversation event and records its stream
// sequence on the event.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(event.Mode, event.ConversationID, event.Type), data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	event.Sequence = ack.Sequence
	return nil
}
