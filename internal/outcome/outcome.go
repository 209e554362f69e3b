// Package outcome decides when a conversation has been won or has ended.
package outcome

import (
	"time"

	"github.com/soulproof/chat-server/internal/model"
)

// Reason explains why a verdict is terminal.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonScore     Reason = "score_threshold"
	ReasonEndMarker Reason = "end_marker"
	ReasonLowStreak Reason = "low_score_streak"
)

// Verdict is the evaluated state after an assistant reply.
type Verdict struct {
	HighestScore *int
	Completed    bool
	Won          bool
	Reason       Reason
}

// Evaluator decides the outcome of a reply. conv does not yet contain the
// reply's turn.
type Evaluator interface {
	Evaluate(conv *model.Conversation, reply *model.Reply) Verdict
}

// Threshold wins a conversation once a reply scores at least WinScore.
type Threshold struct {
	WinScore int
}

// Evaluate implements Evaluator.
func (t Threshold) Evaluate(conv *model.Conversation, reply *model.Reply) Verdict {
	v := Verdict{HighestScore: highest(conv.HighestScore, reply.Score)}
	if reply.Score != nil && *reply.Score >= t.WinScore {
		v.Completed, v.Won, v.Reason = true, true, ReasonScore
	}
	return v
}

// Marker ends a conversation on the end-of-chat marker or after a streak of
// low scores, and wins it when a reply scores at least WinScore.
type Marker struct {
	WinScore int
	// LowScoreCeiling is the highest score still counted as low.
	LowScoreCeiling int
	// LowStreak is the number of consecutive low-scoring replies that ends
	// the conversation. Zero disables the rule.
	LowStreak int
}

// Evaluate implements Evaluator.
func (m Marker) Evaluate(conv *model.Conversation, reply *model.Reply) Verdict {
	v := Verdict{HighestScore: highest(conv.HighestScore, reply.Score)}

	switch {
	case reply.EndChat:
		v.Completed, v.Reason = true, ReasonEndMarker
	case reply.Score != nil && *reply.Score >= m.WinScore:
		v.Completed, v.Won, v.Reason = true, true, ReasonScore
	case m.lowStreak(conv, reply):
		v.Completed, v.Reason = true, ReasonLowStreak
	}
	return v
}

// lowStreak counts back from reply over assistant turns. An unscored reply
// breaks the streak.
func (m Marker) lowStreak(conv *model.Conversation, reply *model.Reply) bool {
	if m.LowStreak <= 0 || reply.Score == nil || *reply.Score > m.LowScoreCeiling {
		return false
	}
	streak := 1
	for i := len(conv.Turns) - 1; i >= 0 && streak < m.LowStreak; i-- {
		t := conv.Turns[i]
		if t.Role != model.RoleAssistant {
			continue
		}
		if t.Score == nil || *t.Score > m.LowScoreCeiling {
			return false
		}
		streak++
	}
	return streak >= m.LowStreak
}

func highest(current, latest *int) *int {
	switch {
	case latest == nil && current == nil:
		return nil
	case latest == nil:
		v := *current
		return &v
	case current == nil || *latest > *current:
		v := *latest
		return &v
	default:
		v := *current
		return &v
	}
}

// Stats are the derived statistics reported on a win.
type Stats struct {
	NumMessages int
	TimeTaken   time.Duration
}

// ComputeStats counts stored turns and the time since the conversation began.
func ComputeStats(conv *model.Conversation, now time.Time) Stats {
	return Stats{
		NumMessages: len(conv.Turns),
		TimeTaken:   now.Sub(conv.CreatedAt),
	}
}
