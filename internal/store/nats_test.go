package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulproof/chat-server/internal/model"
)

type kvEntry struct {
	jetstream.KeyValueEntry
	value    []byte
	revision uint64
}

func (e *kvEntry) Value() []byte    { return e.value }
func (e *kvEntry) Revision() uint64 { return e.revision }

// memoryKV is a jetstream.KeyValue with the bucket's revision semantics:
// one sequence shared by all keys, writes checked against a key's last
// revision.
type memoryKV struct {
	jetstream.KeyValue

	mu      sync.Mutex
	seq     uint64
	entries map[string]*kvEntry
}

func newMemoryKV() *memoryKV {
	return &memoryKV{entries: make(map[string]*kvEntry)}
}

func (kv *memoryKV) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	e, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (kv *memoryKV) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return kv.Update(ctx, key, value, 0)
}

func (kv *memoryKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var last uint64
	if e, ok := kv.entries[key]; ok {
		last = e.revision
	}
	if last != revision {
		return 0, jetstream.ErrKeyExists
	}
	kv.seq++
	kv.entries[key] = &kvEntry{value: append([]byte(nil), value...), revision: kv.seq}
	return kv.seq, nil
}

func (kv *memoryKV) Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if len(kv.entries) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(kv.entries))
	for k := range kv.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestNATSStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewNATSStore(newMemoryKV())
	now := time.Now()

	_, err := s.Get(ctx, "realness:2:u1:c1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	conv := newConv("realness:2:u1:c1", now)
	require.NoError(t, s.Create(ctx, conv))
	assert.NotZero(t, conv.Revision)
	assert.ErrorIs(t, s.Create(ctx, newConv("realness:2:u1:c1", now)), ErrExists)

	got, err := s.Get(ctx, "realness:2:u1:c1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, conv.Revision, got.Revision)

	got.Append(model.NewTurn(model.RoleUser, "hi", now))
	require.NoError(t, s.Update(ctx, got))

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Turns, 2)
	assert.Equal(t, got.Revision, list[0].Revision)

	assert.ErrorIs(t, s.Update(ctx, newConv("other", now)), ErrNotFound)
}

func TestNATSStoreUpdateRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	now := time.Now()
	require.NoError(t, NewNATSStore(kv).Create(ctx, newConv("turing:2:u1:", now)))

	// Two instances sharing one bucket read the same revision.
	a, err := NewNATSStore(kv).Get(ctx, "turing:2:u1:")
	require.NoError(t, err)
	b, err := NewNATSStore(kv).Get(ctx, "turing:2:u1:")
	require.NoError(t, err)

	a.Append(model.NewTurn(model.RoleUser, "from a", now))
	require.NoError(t, NewNATSStore(kv).Update(ctx, a))

	b.Append(model.NewTurn(model.RoleUser, "from b", now))
	assert.ErrorIs(t, NewNATSStore(kv).Update(ctx, b), ErrConflict)

	got, err := NewNATSStore(kv).Get(ctx, "turing:2:u1:")
	require.NoError(t, err)
	assert.Equal(t, "from a", got.LastTurn().Content)
}

func TestWrongRevisionMatchesServerError(t *testing.T) {
	assert.True(t, wrongRevision(jetstream.ErrKeyExists))
	assert.True(t, wrongRevision(&jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence, Code: 400}))
	assert.False(t, wrongRevision(&jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamNotFound, Code: 404}))
	assert.False(t, wrongRevision(nil))
}
