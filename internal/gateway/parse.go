package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/soulproof/chat-server/internal/model"
)

var (
	// ErrReplyNotFound means the provider answered with no content.
	ErrReplyNotFound = errors.New("assistant reply not found")
	// ErrReplyMalformed means the reply failed parsing or schema checks.
	ErrReplyMalformed = errors.New("assistant reply malformed")
	// ErrProviderFailed means no provider produced a reply.
	ErrProviderFailed = errors.New("assistant provider failed")
)

// Parser turns raw provider text into a validated reply.
type Parser interface {
	Parse(raw string) (*model.Reply, error)
	// WantsJSON reports whether providers should be asked for JSON output.
	WantsJSON() bool
}

// DefaultScoreField is the score property of JSON replies.
const DefaultScoreField = "realnessScore"

// JSONScoreParser parses replies of the form {"message": "...", "<score>": n}.
type JSONScoreParser struct {
	ScoreField string
}

// WantsJSON implements Parser.
func (p JSONScoreParser) WantsJSON() bool { return true }

// Parse implements Parser.
func (p JSONScoreParser) Parse(raw string) (*model.Reply, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, ErrReplyNotFound
	}

	field := p.ScoreField
	if field == "" {
		field = DefaultScoreField
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplyMalformed, err)
	}

	if refused(fields["refusal"]) {
		return nil, fmt.Errorf("%w: provider refused", ErrReplyMalformed)
	}

	var message string
	if err := json.Unmarshal(fields["message"], &message); err != nil || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: missing message", ErrReplyMalformed)
	}

	rawScore, ok := fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrReplyMalformed, field)
	}
	var score float64
	if err := json.Unmarshal(rawScore, &score); err != nil {
		return nil, fmt.Errorf("%w: %s is not a number", ErrReplyMalformed, field)
	}
	if math.IsNaN(score) || score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: %s %v out of range", ErrReplyMalformed, field, score)
	}

	rounded := int(math.Round(score))
	return &model.Reply{
		Message: message,
		Score:   &rounded,
	}, nil
}

func refused(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch r := v.(type) {
	case bool:
		return r
	case string:
		return strings.TrimSpace(r) != ""
	}
	return false
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DefaultEndMarker terminates a conversation in annotated replies.
const DefaultEndMarker = "[ENDCHAT]"

var (
	scorePattern  = regexp.MustCompile(`(?i)\s*\[SCORE:*\s*(\d*)\s*\]\s*`)
	spaceRunRegex = regexp.MustCompile(`[ \t]{2,}`)
)

// MarkerParser parses free text annotated with "[SCORE: n]" and an
// end-of-chat marker. Scores are on a 0..Scale range and normalised to 0-100.
type MarkerParser struct {
	Scale int
	end   *regexp.Regexp
}

// NewMarkerParser builds a parser for the given end marker and score scale.
func NewMarkerParser(endMarker string, scale int) *MarkerParser {
	if endMarker == "" {
		endMarker = DefaultEndMarker
	}
	if scale <= 0 {
		scale = 10
	}
	return &MarkerParser{Scale: scale, end: markerPattern(endMarker)}
}

// markerPattern matches marker case-insensitively, tolerating single spaces
// between its characters so "[END CHAT]" matches "[ENDCHAT]".
func markerPattern(marker string) *regexp.Regexp {
	var parts []string
	for _, r := range marker {
		if r == ' ' {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return regexp.MustCompile(`(?i)` + strings.Join(parts, `\s?`))
}

// WantsJSON implements Parser.
func (p *MarkerParser) WantsJSON() bool { return false }

// HasEndMarker reports whether text carries the end-of-chat marker.
func (p *MarkerParser) HasEndMarker(text string) bool {
	return p.end.MatchString(text)
}

// Parse implements Parser.
func (p *MarkerParser) Parse(raw string) (*model.Reply, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrReplyNotFound
	}

	reply := &model.Reply{Raw: raw}

	if matches := scorePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		digits := matches[len(matches)-1][1]
		if digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n > p.Scale {
				return nil, fmt.Errorf("%w: score %q out of range", ErrReplyMalformed, digits)
			}
			normalised := n * 100 / p.Scale
			reply.Score = &normalised
		}
	}

	visible := scorePattern.ReplaceAllString(text, " ")
	if p.end.MatchString(visible) {
		reply.EndChat = true
		visible = p.end.ReplaceAllString(visible, " ")
	}
	visible = strings.TrimSpace(spaceRunRegex.ReplaceAllString(visible, " "))

	if visible == "" && !reply.EndChat {
		return nil, fmt.Errorf("%w: only annotations", ErrReplyMalformed)
	}
	reply.Message = visible
	return reply, nil
}
