package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/pkg/logger"
)

// LeaderboardReader returns ranked conversations.
type LeaderboardReader interface {
	Get(ctx context.Context, limit int) (*model.Leaderboard, error)
}

// LeaderboardHandler handles the leaderboard endpoint.
type LeaderboardHandler struct {
	leaderboard LeaderboardReader
	logger      *logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(lb LeaderboardReader, log *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: lb,
		logger:      log,
	}
}

// Get handles GET /api/leaderboard
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	board, err := h.leaderboard.Get(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to build leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, board)
}
