package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a turn's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are never modified after
// they are appended, with the exception of the Unanswered flag on a user
// turn whose gateway round failed.
type Turn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Raw is the assistant text exactly as the provider produced it,
	// including inline score and end-of-chat annotations. Empty for
	// structured replies.
	Raw string `json:"raw,omitempty"`

	// Score is the normalised 0-100 score attached to an assistant turn.
	Score *int `json:"score,omitempty"`

	// Unanswered marks a user turn whose assistant round failed.
	Unanswered bool `json:"unanswered,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn with a fresh identifier.
func NewTurn(role Role, content string, now time.Time) Turn {
	return Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}

// Transcript returns the text the gateway should replay for this turn.
func (t Turn) Transcript() string {
	if t.Raw != "" {
		return t.Raw
	}
	return t.Content
}

// Reply is the parsed, validated answer from the LLM gateway.
type Reply struct {
	// Message is the user-visible text with annotations stripped.
	Message string
	// Raw is the unmodified provider text for annotated replies.
	Raw string
	// Score is normalised to 0-100; nil when the reply carried none.
	Score *int
	// EndChat reports that the reply carried the end-of-chat marker.
	EndChat bool
	// Provider is the name of the provider that answered.
	Provider string
}
