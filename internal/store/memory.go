package store

import (
	"context"
	"sync"
	"time"

	"github.com/soulproof/chat-server/internal/model"
)

// MemoryStore keeps conversations in process memory. With a positive TTL,
// conversations idle for longer than the TTL are treated as absent and
// removed by Sweep.
type MemoryStore struct {
	conversations map[string]*model.Conversation
	mu            sync.RWMutex

	ttl time.Duration
	now func() time.Time
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps conversations
// for the life of the process.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		ttl:           ttl,
		now:           time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) expired(conv *model.Conversation) bool {
	return s.ttl > 0 && s.now().Sub(conv.UpdatedAt) > s.ttl
}

// Get retrieves a conversation by session key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*model.Conversation, error) {
	s.mu.RLock()
	conv, exists := s.conversations[key]
	s.mu.RUnlock()

	if !exists || s.expired(conv) {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// Create stores a new conversation unless a live one holds the key.
func (s *MemoryStore) Create(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.conversations[conv.SessionKey]; exists && !s.expired(existing) {
		return ErrExists
	}
	conv.Revision = 1
	s.conversations[conv.SessionKey] = conv.Clone()
	return nil
}

// Update replaces a stored conversation read at conv.Revision.
func (s *MemoryStore) Update(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.conversations[conv.SessionKey]
	if !exists || s.expired(existing) {
		return ErrNotFound
	}
	if existing.Revision != conv.Revision {
		return ErrConflict
	}
	conv.Revision++
	s.conversations[conv.SessionKey] = conv.Clone()
	return nil
}

// List returns copies of all live conversations.
func (s *MemoryStore) List(ctx context.Context) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if !s.expired(conv) {
			convs = append(convs, conv.Clone())
		}
	}
	return convs, nil
}

// Sweep removes expired conversations and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, conv := range s.conversations {
		if s.expired(conv) {
			delete(s.conversations, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored conversations, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
