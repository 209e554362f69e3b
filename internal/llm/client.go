// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	// Model overrides the provider's configured model when set.
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	// JSON asks providers that support it for a JSON object reply.
	JSON bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	Provider   string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderTogether  Provider = "together"
)

// TogetherBaseURL is the OpenAI-compatible endpoint of Together AI.
const TogetherBaseURL = "https://api.together.xyz/v1"

// ProviderConfig configures a single provider.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, cfg ProviderConfig) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			Name:     string(ProviderOpenAI),
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
			JSONMode: true,
		})
	case ProviderTogether:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = TogetherBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{
			Name:    string(ProviderTogether),
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// ProviderError is a failed provider call annotated with its HTTP status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a failed call is worth repeating. Client
// errors other than timeouts and throttling are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.StatusCode >= 400 && perr.StatusCode < 500 {
		return perr.StatusCode == http.StatusRequestTimeout || perr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
