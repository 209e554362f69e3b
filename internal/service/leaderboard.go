package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/internal/store"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50
)

// LeaderboardService ranks stored conversations.
type LeaderboardService struct {
	store store.Store
}

// NewLeaderboardService creates a new leaderboard service.
func NewLeaderboardService(st store.Store) *LeaderboardService {
	return &LeaderboardService{store: st}
}

// Get returns the highest scoring and the most recently started scored
// conversations, at most limit of each.
func (s *LeaderboardService) Get(ctx context.Context, limit int) (*model.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	convs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(convs))
	for _, conv := range convs {
		if conv.HighestScore == nil {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			UserID:       conv.UserID,
			Mode:         conv.Mode,
			HighestScore: *conv.HighestScore,
			HasWon:       conv.Won,
			NumMessages:  len(conv.Turns),
			CreatedAt:    conv.CreatedAt,
		})
	}

	top := append([]model.LeaderboardEntry(nil), entries...)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].HighestScore != top[j].HighestScore {
			return top[i].HighestScore > top[j].HighestScore
		}
		return top[i].CreatedAt.Before(top[j].CreatedAt)
	})

	recent := entries
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})

	return &model.Leaderboard{
		Top:    truncate(top, limit),
		Recent: truncate(recent, limit),
	}, nil
}

func truncate(entries []model.LeaderboardEntry, n int) []model.LeaderboardEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
