package service

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTurn matches every InvalidTurnError.
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrGateway matches every GatewayError.
	ErrGateway = errors.New("gateway failure")
)

// ValidationError reports malformed or oversized input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string        { return e.Message }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StatusCode returns the HTTP status for the error.
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// InvalidTurnError reports a submission the conversation cannot accept in
// its current state.
type InvalidTurnError struct {
	Message string
	// Completed is set when the conversation has already ended.
	Completed bool
}

func (e *InvalidTurnError) Error() string        { return e.Message }
func (e *InvalidTurnError) Is(target error) bool { return target == ErrInvalidTurn }

// StatusCode returns the HTTP status for the error.
func (e *InvalidTurnError) StatusCode() int { return http.StatusBadRequest }

// GatewayError reports a failed or unusable assistant reply. Message is safe
// to show to clients; Err carries the provider detail.
type GatewayError struct {
	Status  int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error        { return e.Err }
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// StatusCode returns the HTTP status for the error.
func (e *GatewayError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Error messages returned to clients.
const (
	MsgMissingFields     = "Missing required fields"
	MsgMessageTooLong    = "Message too long"
	MsgChatCompleted     = "Chat has already completed"
	MsgAwaitingAssistant = "Waiting for assistant response"
	MsgChatEnded         = "Chat has ended"
	MsgReplyNotFound     = "Assistant reply not found"
	MsgReplyMalformed    = "Assistant reply malformed"
	MsgInternal          = "Internal server error"
)
