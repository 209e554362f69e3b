package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/soulproof/chat-server/internal/model"
)

// NATSStore keeps conversations in a JetStream key-value bucket. Eviction is
// the bucket's TTL.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates a store backed by kv.
func NewNATSStore(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

// EncodeKey maps a session key onto the KV key alphabet.
func EncodeKey(sessionKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sessionKey))
}

// Get retrieves a conversation by session key.
func (s *NATSStore) Get(ctx context.Context, key string) (*model.Conversation, error) {
	entry, err := s.kv.Get(ctx, EncodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	conv.Revision = entry.Revision()
	return &conv, nil
}

// Create stores a new conversation unless the key is taken.
func (s *NATSStore) Create(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	revision, err := s.kv.Create(ctx, EncodeKey(conv.SessionKey), data)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	conv.Revision = revision
	return nil
}

// Update writes conv only if the entry is still at conv.Revision, so two
// instances that read the same revision cannot both append a turn.
func (s *NATSStore) Update(ctx context.Context, conv *model.Conversation) error {
	if conv.Revision == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	revision, err := s.kv.Update(ctx, EncodeKey(conv.SessionKey), data, conv.Revision)
	if wrongRevision(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	conv.Revision = revision
	return nil
}

func wrongRevision(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// List returns every conversation in the bucket.
func (s *NATSStore) List(ctx context.Context) ([]*model.Conversation, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	convs := make([]*model.Conversation, 0, len(keys))
	for _, k := range keys {
		entry, err := s.kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get conversation: %w", err)
		}
		var conv model.Conversation
		if err := json.Unmarshal(entry.Value(), &conv); err != nil {
			continue
		}
		conv.Revision = entry.Revision()
		convs = append(convs, &conv)
	}
	return convs, nil
}
