package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	flaky := newFake("openai",
		fakeResult{err: errors.New("timeout")},
		fakeResult{err: errors.New("timeout")},
		fakeResult{resp: &CompletionResponse{Content: "ok"}},
	)

	resp, err := WithRetry(flaky, 3, time.Millisecond).Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, flaky.Calls())
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	down := newFake("openai", fakeResult{err: errors.New("unavailable")})

	_, err := WithRetry(down, 2, time.Millisecond).Complete(context.Background(), &CompletionRequest{})

	require.Error(t, err)
	assert.Equal(t, 3, down.Calls())
}

func TestRetryDoesNotRepeatClientErrors(t *testing.T) {
	bad := newFake("openai", fakeResult{err: &ProviderError{
		Provider:   "openai",
		StatusCode: http.StatusBadRequest,
		Err:        errors.New("invalid model"),
	}})

	_, err := WithRetry(bad, 3, time.Millisecond).Complete(context.Background(), &CompletionRequest{})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, 1, bad.Calls())
}

func TestRetryDisabled(t *testing.T) {
	down := newFake("openai", fakeResult{err: errors.New("unavailable")})

	_, err := WithRetry(down, 0, time.Millisecond).Complete(context.Background(), &CompletionRequest{})

	require.Error(t, err)
	assert.Equal(t, 1, down.Calls())
	assert.Equal(t, "openai", WithRetry(down, 0, 0).Name())
}
