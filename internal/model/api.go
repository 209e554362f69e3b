package model

import "time"

// ChatRequest is the inbound body of a chat round.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
}

// ChatResponse is returned after a successful round.
type ChatResponse struct {
	Message      string `json:"message"`
	HighestScore *int   `json:"highestScore,omitempty"`
	HasWon       bool   `json:"hasWon,omitempty"`
	HasCompleted bool   `json:"hasCompleted,omitempty"`
	NumMessages  int    `json:"numMessages,omitempty"`
	TimeTaken    int64  `json:"timeTaken,omitempty"`
}

// LeaderboardEntry summarises one conversation for the leaderboard.
type LeaderboardEntry struct {
	UserID       string    `json:"userId"`
	Mode         string    `json:"mode"`
	HighestScore int       `json:"highestScore"`
	HasWon       bool      `json:"hasWon"`
	NumMessages  int       `json:"numMessages"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Leaderboard is the response for the leaderboard endpoint.
type Leaderboard struct {
	Top    []LeaderboardEntry `json:"top"`
	Recent []LeaderboardEntry `json:"recent"`
}
