package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soulproof/chat-server/pkg/logger"
	"github.com/soulproof/chat-server/pkg/metrics"
)

// ErrNoProviders is returned when a fallback chain has nothing to call.
var ErrNoProviders = errors.New("no LLM providers configured")

// FallbackClient attempts an ordered list of providers, each once, and
// returns the first success. All attempts share the caller's deadline.
type FallbackClient struct {
	providers []Client
	logger    *logger.Logger
}

// NewFallback creates a fallback chain in priority order.
func NewFallback(log *logger.Logger, providers ...Client) *FallbackClient {
	return &FallbackClient{
		providers: providers,
		logger:    log,
	}
}

// Name returns the provider names in attempt order.
func (f *FallbackClient) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// Models returns the models of every provider in the chain.
func (f *FallbackClient) Models() []string {
	var models []string
	for _, p := range f.providers {
		models = append(models, p.Models()...)
	}
	return models
}

// Complete sends the request to each provider in order until one succeeds.
func (f *FallbackClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if len(f.providers) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		start := time.Now()
		resp, err := p.Complete(ctx, req)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			metrics.RecordGatewayAttempt(p.Name(), "success", elapsed)
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			return resp, nil
		}

		metrics.RecordGatewayAttempt(p.Name(), "error", elapsed)
		f.logger.Warn("LLM provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	return nil, errors.Join(errs...)
}
