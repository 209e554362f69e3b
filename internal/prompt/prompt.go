// Package prompt loads the system prompts that configure each game mode.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PersonaPlaceholder is replaced with a randomly chosen persona.
const PersonaPlaceholder = "{{persona}}"

//go:embed default.yaml
var defaultYAML []byte

// Set is a collection of mode prompts keyed by mode name.
type Set struct {
	Modes map[string]*Mode `yaml:"modes"`
}

// Mode holds the prompt and transcript conventions for one game mode.
type Mode struct {
	System   string   `yaml:"system"`
	Personas []string `yaml:"personas"`

	// UserPrefix and AssistantPrefix are prepended to replayed turns.
	UserPrefix      string `yaml:"user_prefix"`
	AssistantPrefix string `yaml:"assistant_prefix"`
	// ReplyPrefix is prepended to the message returned to the browser.
	ReplyPrefix string `yaml:"reply_prefix"`

	// ScoreField names the score property of JSON replies.
	ScoreField string `yaml:"score_field"`
	// EndMarker is the literal end-of-chat marker of annotated replies.
	EndMarker string `yaml:"end_marker"`

	// InvertRoles presents the player as the assistant and the model as the user.
	InvertRoles bool `yaml:"invert_roles"`
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(defaultYAML)
}

// Load reads a prompt set from path, or the embedded default when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML prompt set.
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if len(set.Modes) == 0 {
		return nil, errors.New("prompts: no modes defined")
	}
	for name, m := range set.Modes {
		if m == nil || strings.TrimSpace(m.System) == "" {
			return nil, fmt.Errorf("prompts: mode %q has no system prompt", name)
		}
		if strings.Contains(m.System, PersonaPlaceholder) && len(m.Personas) == 0 {
			return nil, fmt.Errorf("prompts: mode %q uses %s but defines no personas", name, PersonaPlaceholder)
		}
	}
	return &set, nil
}

// Mode returns the named mode.
func (s *Set) Mode(name string) (*Mode, error) {
	m, ok := s.Modes[name]
	if !ok {
		return nil, fmt.Errorf("prompts: unknown mode %q", name)
	}
	return m, nil
}

// Instructions renders the system prompt for a new conversation, choosing a
// persona with pick. A nil pick uses math/rand.
func (m *Mode) Instructions(pick func(n int) int) string {
	if len(m.Personas) == 0 || !strings.Contains(m.System, PersonaPlaceholder) {
		return m.System
	}
	if pick == nil {
		pick = rand.Intn
	}
	persona := m.Personas[pick(len(m.Personas))]
	return strings.ReplaceAll(m.System, PersonaPlaceholder, persona)
}
