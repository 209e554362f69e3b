// Package gateway assembles conversation history into LLM requests and
// validates the replies.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/soulproof/chat-server/internal/llm"
	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/pkg/metrics"
)

// Config configures a Gateway.
type Config struct {
	Client llm.Client
	Parser Parser

	// UserPrefix and AssistantPrefix are prepended to replayed turns.
	UserPrefix      string
	AssistantPrefix string
	// InvertRoles presents player turns as assistant turns and vice versa.
	InvertRoles bool

	MaxTokens   int
	Temperature float64
}

// Gateway sends a conversation to an LLM and returns the parsed reply.
type Gateway struct {
	cfg Config
}

// New creates a new gateway.
func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// Reply sends the full turn history and parses the answer. Errors wrap
// ErrProviderFailed, ErrReplyNotFound or ErrReplyMalformed.
func (g *Gateway) Reply(ctx context.Context, turns []model.Turn) (*model.Reply, error) {
	resp, err := g.cfg.Client.Complete(ctx, g.BuildRequest(turns))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	metrics.RecordTokens(resp.Provider, resp.TokensIn, resp.TokensOut)

	reply, err := g.cfg.Parser.Parse(resp.Content)
	if err != nil {
		return nil, err
	}
	reply.Provider = resp.Provider
	return reply, nil
}

// BuildRequest maps turns onto a two-role exchange. System turns become the
// system prompt; consecutive turns that map to the same role are merged.
func (g *Gateway) BuildRequest(turns []model.Turn) *llm.CompletionRequest {
	playerRole, modelRole := "user", "assistant"
	if g.cfg.InvertRoles {
		playerRole, modelRole = modelRole, playerRole
	}

	var system []string
	var messages []llm.ChatMessage
	for _, t := range turns {
		var role, content string
		switch t.Role {
		case model.RoleSystem:
			system = append(system, t.Content)
			continue
		case model.RoleUser:
			role, content = playerRole, g.cfg.UserPrefix+t.Content
		case model.RoleAssistant:
			role, content = modelRole, g.cfg.AssistantPrefix+t.Transcript()
		default:
			continue
		}

		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n" + content
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: content})
	}

	return &llm.CompletionRequest{
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		JSON:        g.cfg.Parser.WantsJSON(),
	}
}
