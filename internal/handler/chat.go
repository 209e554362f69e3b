// Package handler implements the HTTP endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/internal/service"
	"github.com/soulproof/chat-server/pkg/logger"
)

// ChatSender runs one chat round.
type ChatSender interface {
	Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	Mode() string
}

// ChatHandler handles the chat endpoints, one instance per mode.
type ChatHandler struct {
	chat   ChatSender
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat ChatSender, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: log,
	}
}

// Send handles POST /api/chat and POST /chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.chat.Send(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *service.GatewayError
	var turnErr *service.InvalidTurnError

	switch {
	case errors.As(err, &gwErr):
		writeError(w, gwErr.StatusCode(), gwErr.Message)
	case errors.As(err, &turnErr):
		writeJSON(w, turnErr.StatusCode(), errorResponse{
			Error:        turnErr.Message,
			HasCompleted: turnErr.Completed,
		})
	case errors.Is(err, service.ErrValidation):
		writeError(w, service.StatusCode(err), err.Error())
	default:
		h.logger.Error("chat round failed",
			zap.Error(err),
			zap.String("mode", h.chat.Mode()),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, service.MsgInternal)
	}
}
