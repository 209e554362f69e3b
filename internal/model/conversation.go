// Package model defines data structures for the chat server.
package model

import (
	"time"

	"github.com/google/uuid"
)

// State is the derived turn-taking state of a conversation.
type State string

const (
	StateEmpty             State = "empty"
	StateAwaitingUser      State = "awaiting_user"
	StateAwaitingAssistant State = "awaiting_assistant"
	StateCompleted         State = "completed"
)

// Conversation is the ordered turn history of one session plus the
// terminal and score state derived from it.
type Conversation struct {
	ID         string `json:"id"`
	SessionKey string `json:"session_key"`
	Mode       string `json:"mode"`
	UserID     string `json:"user_id"`
	ChatID     string `json:"chat_id,omitempty"`

	Turns []Turn `json:"turns"`

	Completed    bool `json:"completed"`
	Won          bool `json:"won"`
	HighestScore *int `json:"highest_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Revision is the store revision this copy was read at.
	Revision uint64 `json:"-"`
}

// NewConversation creates a conversation seeded with the system instructions.
func NewConversation(sessionKey, mode, userID, chatID, instructions string, now time.Time) *Conversation {
	return &Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		SessionKey: sessionKey,
		Mode:       mode,
		UserID:     userID,
		ChatID:     chatID,
		Turns:      []Turn{NewTurn(RoleSystem, instructions, now)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// LastTurn returns the most recent turn, or nil for an empty history.
func (c *Conversation) LastTurn() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	return &c.Turns[len(c.Turns)-1]
}

// State derives the turn-taking state from the history.
func (c *Conversation) State() State {
	if c == nil {
		return StateEmpty
	}
	if c.Completed {
		return StateCompleted
	}
	last := c.LastTurn()
	if last != nil && last.Role == RoleUser && !last.Unanswered {
		return StateAwaitingAssistant
	}
	return StateAwaitingUser
}

// Append adds a turn to the end of the history.
func (c *Conversation) Append(t Turn) {
	c.Turns = append(c.Turns, t)
	c.UpdatedAt = t.CreatedAt
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Turns = make([]Turn, len(c.Turns))
	for i, t := range c.Turns {
		if t.Score != nil {
			s := *t.Score
			t.Score = &s
		}
		out.Turns[i] = t
	}
	if c.HighestScore != nil {
		h := *c.HighestScore
		out.HighestScore = &h
	}
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
