package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulproof/chat-server/pkg/logger"
)

func TestFallbackUsesSecondaryOnPrimaryFailure(t *testing.T) {
	primary := newFake("openai", fakeResult{err: errors.New("connection reset")})
	secondary := newFake("anthropic", fakeResult{resp: &CompletionResponse{Content: "hi"}})

	chain := NewFallback(logger.NewNop(), primary, secondary)
	resp, err := chain.Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
	assert.Equal(t, "openai,anthropic", chain.Name())
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	primary := newFake("openai", fakeResult{resp: &CompletionResponse{Content: "first"}})
	secondary := newFake("anthropic", fakeResult{resp: &CompletionResponse{Content: "second"}})

	resp, err := NewFallback(logger.NewNop(), primary, secondary).Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)
	assert.Equal(t, 0, secondary.Calls())
}

func TestFallbackJoinsErrorsWhenAllFail(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	chain := NewFallback(logger.NewNop(),
		newFake("a", fakeResult{err: errA}),
		newFake("b", fakeResult{err: errB}),
	)

	_, err := chain.Complete(context.Background(), &CompletionRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestFallbackWithoutProviders(t *testing.T) {
	_, err := NewFallback(logger.NewNop()).Complete(context.Background(), &CompletionRequest{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestFallbackRespectsExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	primary := newFake("openai", fakeResult{resp: &CompletionResponse{Content: "late"}})
	_, err := NewFallback(logger.NewNop(), primary).Complete(ctx, &CompletionRequest{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, primary.Calls())
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network", err: errors.New("dial tcp: refused"), want: true},
		{name: "server error", err: &ProviderError{Provider: "openai", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, want: true},
		{name: "throttled", err: &ProviderError{Provider: "openai", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}, want: true},
		{name: "bad request", err: &ProviderError{Provider: "openai", StatusCode: http.StatusBadRequest, Err: errors.New("bad")}, want: false},
		{name: "unauthorized", err: &ProviderError{Provider: "anthropic", StatusCode: http.StatusUnauthorized, Err: errors.New("key")}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(Provider("bard"), ProviderConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic, ProviderTogether} {
		_, err := NewClient(p, ProviderConfig{})
		assert.Error(t, err, p)
	}
}
