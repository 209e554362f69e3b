// Package service implements the chat round state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/soulproof/chat-server/internal/gateway"
	"github.com/soulproof/chat-server/internal/model"
	"github.com/soulproof/chat-server/internal/outcome"
	"github.com/soulproof/chat-server/internal/store"
	"github.com/soulproof/chat-server/pkg/logger"
	"github.com/soulproof/chat-server/pkg/metrics"
)

// Replier produces the assistant's reply to a turn history.
type Replier interface {
	Reply(ctx context.Context, turns []model.Turn) (*model.Reply, error)
}

// EventPublisher receives turns and lifecycle events as they are stored.
type EventPublisher interface {
	PublishTurn(ctx context.Context, conv *model.Conversation, turn *model.Turn) error
	PublishEvent(ctx context.Context, event *model.ConversationEvent) error
}

// Mode is one game variant served by a ChatService.
type Mode struct {
	Name string
	// RequireChatID keys sessions by user and chat id instead of user id only.
	RequireChatID bool
	// Instructions returns the system turn for a new conversation.
	Instructions func() string
	// ReplyPrefix is prepended to the message returned to clients.
	ReplyPrefix string

	Gateway   Replier
	Evaluator outcome.Evaluator
	// HasEndMarker reports whether a stored turn ended the chat. Nil
	// disables the check.
	HasEndMarker func(text string) bool

	// FailureStatus is the HTTP status of a gateway failure. Zero means 500.
	FailureStatus int
	// TypingCharsPerMinute delays replies in proportion to their length.
	// Zero disables the delay.
	TypingCharsPerMinute int
}

// ChatService runs chat rounds for one mode.
type ChatService struct {
	mode      Mode
	store     store.Store
	publisher EventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
	locks     *keyedMutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	gatewayTimeout   time.Duration
	maxMessageLength int
}

// Option configures a ChatService.
type Option func(*ChatService)

// WithPublisher sets the audit publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *ChatService) { s.publisher = p }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *ChatService) { s.now = now }
}

// WithSleep replaces the typing delay implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *ChatService) { s.sleep = sleep }
}

// WithGatewayTimeout bounds each gateway call, retries included.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *ChatService) { s.gatewayTimeout = d }
}

// WithMaxMessageLength sets the longest accepted message in runes.
func WithMaxMessageLength(n int) Option {
	return func(s *ChatService) { s.maxMessageLength = n }
}

// NewChatService creates a new chat service.
func NewChatService(mode Mode, st store.Store, log *logger.Logger, opts ...Option) *ChatService {
	s := &ChatService{
		mode:             mode,
		store:            st,
		logger:           log,
		tracer:           otel.Tracer("github.com/soulproof/chat-server/internal/service"),
		locks:            newKeyedMutex(),
		now:              time.Now,
		sleep:            sleepContext,
		gatewayTimeout:   60 * time.Second,
		maxMessageLength: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the mode name.
func (s *ChatService) Mode() string {
	return s.mode.Name
}

// SessionKey identifies the conversation a request belongs to.
func SessionKey(mode, userID, chatID string) string {
	return fmt.Sprintf("%s:%d:%s:%s", mode, len(userID), userID, chatID)
}

// Send runs one chat round: it records the user's message, asks the gateway
// for a reply, evaluates the outcome and records the reply.
func (s *ChatService) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	if !s.mode.RequireChatID {
		req.ChatID = ""
	}
	if err := validateRequest(req, s.mode.RequireChatID, s.maxMessageLength); err != nil {
		metrics.RecordRound(s.mode.Name, "rejected")
		return nil, err
	}

	key := SessionKey(s.mode.Name, req.UserID, req.ChatID)
	log := s.logger.WithSession(chimiddleware.GetReqID(ctx), s.mode.Name, key)

	conv, userTurn, err := s.begin(ctx, key, req, log)
	if err != nil {
		if errors.Is(err, ErrInvalidTurn) {
			metrics.RecordRound(s.mode.Name, "rejected")
		}
		return nil, err
	}

	reply, err := s.reply(ctx, conv)

	// The round is recorded even if the client has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		return nil, s.fail(persistCtx, key, userTurn.ID, err, log)
	}

	resp, err := s.finish(persistCtx, key, userTurn.ID, reply, log)
	if err != nil {
		return nil, err
	}

	if cpm := s.mode.TypingCharsPerMinute; cpm > 0 {
		delay := time.Duration(len([]rune(reply.Message))) * time.Minute / time.Duration(cpm)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// begin resolves the conversation, checks it can take a user turn and
// stores that turn. It returns a snapshot including the new turn.
func (s *ChatService) begin(ctx context.Context, key string, req model.ChatRequest, log *logger.Logger) (*model.Conversation, model.Turn, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	conv, err := s.resolve(ctx, key, req, log)
	if err != nil {
		return nil, model.Turn{}, err
	}

	if conv.State() == model.StateCompleted {
		return nil, model.Turn{}, &InvalidTurnError{Message: MsgChatCompleted, Completed: true}
	}
	if conv.State() == model.StateAwaitingAssistant {
		return nil, model.Turn{}, &InvalidTurnError{Message: MsgAwaitingAssistant}
	}
	if last := conv.LastTurn(); last != nil && last.Role == model.RoleAssistant &&
		s.mode.HasEndMarker != nil && s.mode.HasEndMarker(last.Transcript()) {
		return nil, model.Turn{}, &InvalidTurnError{Message: MsgChatEnded, Completed: true}
	}

	turn := model.NewTurn(model.RoleUser, req.Message, s.now())
	conv.Append(turn)
	err = s.store.Update(ctx, conv)
	if errors.Is(err, store.ErrConflict) {
		// Another instance stored a turn since the conversation was read.
		return nil, model.Turn{}, &InvalidTurnError{Message: MsgAwaitingAssistant}
	}
	if err != nil {
		return nil, model.Turn{}, fmt.Errorf("failed to store user turn: %w", err)
	}
	s.publishTurn(ctx, conv, &turn, log)

	return conv, turn, nil
}

// resolve returns the session's conversation, creating it on first use.
func (s *ChatService) resolve(ctx context.Context, key string, req model.ChatRequest, log *logger.Logger) (*model.Conversation, error) {
	conv, err := s.store.Get(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	conv = model.NewConversation(key, s.mode.Name, req.UserID, req.ChatID, s.mode.Instructions(), s.now())
	err = s.store.Create(ctx, conv)
	if errors.Is(err, store.ErrExists) {
		// Another instance created it first.
		if conv, err = s.store.Get(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		return conv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsTotal.WithLabelValues(s.mode.Name).Inc()
	log.Info("conversation created", zap.String("conversation_id", conv.ID))
	s.publishEvent(ctx, conv, model.EventTypeCreated, "", nil, log)

	return conv, nil
}

func (s *ChatService) reply(ctx context.Context, conv *model.Conversation) (*model.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "gateway.Reply", trace.WithAttributes(
		attribute.String("chat.mode", s.mode.Name),
		attribute.String("chat.conversation_id", conv.ID),
		attribute.Int("chat.turns", len(conv.Turns)),
	))
	defer span.End()

	reply, err := s.mode.Gateway.Reply(ctx, conv.Turns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("llm.provider", reply.Provider))
	return reply, nil
}

// finish records the assistant reply and the outcome it leads to.
func (s *ChatService) finish(ctx context.Context, key, userTurnID string, reply *model.Reply, log *logger.Logger) (*model.ChatResponse, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	conv, err := s.pending(ctx, key, userTurnID)
	if err != nil {
		return nil, err
	}

	verdict := s.mode.Evaluator.Evaluate(conv, reply)
	now := s.now()

	turn := model.NewTurn(model.RoleAssistant, reply.Message, now)
	turn.Raw = reply.Raw
	if reply.Score != nil {
		score := *reply.Score
		turn.Score = &score
	}
	conv.Append(turn)
	conv.HighestScore = verdict.HighestScore
	if verdict.Completed {
		conv.Completed = true
		conv.Won = verdict.Won
		conv.CompletedAt = &now
	}

	if err := s.store.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to store assistant turn: %w", err)
	}
	s.publishTurn(ctx, conv, &turn, log)

	resp := &model.ChatResponse{
		Message:      s.mode.ReplyPrefix + reply.Message,
		HighestScore: verdict.HighestScore,
	}

	if !verdict.Completed {
		metrics.RecordRound(s.mode.Name, "continued")
		log.Debug("round completed",
			zap.String("conversation_id", conv.ID),
			zap.String("provider", reply.Provider),
		)
		return resp, nil
	}

	stats := outcome.ComputeStats(conv, now)
	resp.HasWon = verdict.Won
	resp.HasCompleted = true
	resp.NumMessages = stats.NumMessages
	resp.TimeTaken = stats.TimeTaken.Milliseconds()

	eventType := model.EventTypeEnded
	if verdict.Won {
		eventType = model.EventTypeWon
	}
	metrics.RecordRound(s.mode.Name, string(eventType))
	metrics.RecordCompletion(s.mode.Name, verdict.Won)
	s.publishEvent(ctx, conv, eventType, string(verdict.Reason), map[string]any{
		"num_messages":  stats.NumMessages,
		"time_taken_ms": resp.TimeTaken,
		"highest_score": verdict.HighestScore,
	}, log)
	log.Info("conversation completed",
		zap.String("conversation_id", conv.ID),
		zap.Bool("won", verdict.Won),
		zap.String("reason", string(verdict.Reason)),
		zap.Int("num_messages", stats.NumMessages),
	)

	return resp, nil
}

// fail marks the pending user turn unanswered so the player can retry, and
// translates the gateway error for clients.
func (s *ChatService) fail(ctx context.Context, key, userTurnID string, cause error, log *logger.Logger) error {
	log.Error("gateway failed", zap.Error(cause))
	metrics.RecordRound(s.mode.Name, string(model.EventTypeGatewayFailure))

	gwErr := &GatewayError{
		Status:  s.mode.FailureStatus,
		Message: gatewayMessage(cause),
		Err:     cause,
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	conv, err := s.pending(ctx, key, userTurnID)
	if err != nil {
		log.Error("failed to reopen conversation", zap.Error(err))
		return gwErr
	}
	conv.LastTurn().Unanswered = true
	if err := s.store.Update(ctx, conv); err != nil {
		log.Error("failed to reopen conversation", zap.Error(err))
		return gwErr
	}
	s.publishEvent(ctx, conv, model.EventTypeGatewayFailure, gwErr.Message, nil, log)

	return gwErr
}

// pending reloads the conversation and checks that userTurnID is still the
// turn awaiting a reply.
func (s *ChatService) pending(ctx context.Context, key, userTurnID string) (*model.Conversation, error) {
	conv, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to reload conversation: %w", err)
	}
	last := conv.LastTurn()
	if last == nil || last.ID != userTurnID || conv.State() != model.StateAwaitingAssistant {
		return nil, fmt.Errorf("conversation %s changed while awaiting reply", conv.ID)
	}
	return conv, nil
}

func gatewayMessage(err error) string {
	switch {
	case errors.Is(err, gateway.ErrReplyNotFound):
		return MsgReplyNotFound
	case errors.Is(err, gateway.ErrReplyMalformed):
		return MsgReplyMalformed
	default:
		return MsgInternal
	}
}

func (s *ChatService) publishTurn(ctx context.Context, conv *model.Conversation, turn *model.Turn, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTurn(ctx, conv, turn); err != nil {
		log.Warn("failed to publish turn", zap.Error(err), zap.String("turn_id", turn.ID))
	}
}

func (s *ChatService) publishEvent(ctx context.Context, conv *model.Conversation, typ model.EventType, reason string, metadata map[string]any, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Mode:           conv.Mode,
		UserID:         conv.UserID,
		Type:           typ,
		Reason:         reason,
		Metadata:       metadata,
		CreatedAt:      s.now(),
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		log.Warn("failed to publish event", zap.Error(err), zap.String("event_type", string(typ)))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusCode returns the HTTP status for err: the error's own status when
// it has one, 500 otherwise.
func StatusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
