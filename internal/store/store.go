// Package store provides the session registry: conversation storage keyed
// by session key.
package store

import (
	"context"
	"errors"

	"github.com/soulproof/chat-server/internal/model"
)

var (
	// ErrNotFound is returned when no conversation exists for a key.
	ErrNotFound = errors.New("conversation not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("conversation already exists")
	// ErrConflict is returned by Update when the stored conversation has
	// moved past the revision the caller read.
	ErrConflict = errors.New("conversation changed concurrently")
)

// Store holds conversations keyed by session key. Implementations never
// share conversation values with callers; every call works on a copy.
type Store interface {
	Get(ctx context.Context, key string) (*model.Conversation, error)
	// Create stores conv under conv.SessionKey unless the key is taken and
	// sets conv.Revision.
	Create(ctx context.Context, conv *model.Conversation) error
	// Update replaces the conversation if it is still at conv.Revision and
	// advances conv.Revision.
	Update(ctx context.Context, conv *model.Conversation) error
	List(ctx context.Context) ([]*model.Conversation, error)
}
