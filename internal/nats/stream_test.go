package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/pkg/logger"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "chat.realness.abc.turn.user", TurnSubject("realness", "abc", model.RoleUser))
	assert.Equal(t, "chat.turing.abc.event.won", EventSubject("turing", "abc", model.EventTypeWon))
	assert.Equal(t, "chat.turing.abc.>", ConversationFilter("turing", "abc"))
}

func TestClientWithoutConnectionIsNotConnected(t *testing.T) {
	var c Client
	assert.False(t, c.IsConnected())
	c.Close()
}

func applyOptions(t *testing.T, opts []nats.Option) nats.Options {
	t.Helper()
	o := nats.GetDefaultOptions()
	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}
	return o
}

func TestConnectOptions(t *testing.T) {
	o := applyOptions(t, connectOptions(Config{URL: "nats://localhost:4222"}, logger.NewNop()))
	assert.Equal(t, ClientName, o.Name)
	assert.Equal(t, -1, o.MaxReconnect)
	assert.Empty(t, o.Token)
	assert.False(t, o.Secure)

	o = applyOptions(t, connectOptions(Config{Token: "s3cret"}, logger.NewNop()))
	assert.Equal(t, "s3cret", o.Token)
}
