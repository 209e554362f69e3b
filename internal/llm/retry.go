package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingClient repeats transient provider failures with exponential backoff.
type RetryingClient struct {
	next            Client
	maxRetries      int
	initialInterval time.Duration
}

// WithRetry wraps a client so that retryable failures are attempted up to
// maxRetries more times. The caller's context bounds the total time spent.
func WithRetry(c Client, maxRetries int, initialInterval time.Duration) *RetryingClient {
	if initialInterval <= 0 {
		initialInterval = 500 * time.Millisecond
	}
	return &RetryingClient{
		next:            c,
		maxRetries:      maxRetries,
		initialInterval: initialInterval,
	}
}

// Name returns the wrapped provider name.
func (r *RetryingClient) Name() string {
	return r.next.Name()
}

// Models returns the wrapped provider models.
func (r *RetryingClient) Models() []string {
	return r.next.Models()
}

// Complete sends a completion request, retrying transient failures.
func (r *RetryingClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if r.maxRetries <= 0 {
		return r.next.Complete(ctx, req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)

	var resp *CompletionResponse
	err := backoff.Retry(func() error {
		out, err := r.next.Complete(ctx, req)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = out
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
