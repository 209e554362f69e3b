package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soulproof/chat-server/internal/config"
	"github.com/soulproof/chat-server/internal/gateway"
	"github.com/soulproof/chat-server/internal/handler"
	"github.com/soulproof/chat-server/internal/llm"
	"github.com/soulproof/chat-server/internal/middleware"
	"github.com/soulproof/chat-server/internal/outcome"
	"github.com/soulproof/chat-server/internal/prompt"
	"github.com/soulproof/chat-server/internal/service"
	"github.com/soulproof/chat-server/internal/store"
	"github.com/soulproof/chat-server/pkg/logger"
)

const (
	modeRealness = "realness"
	modeTuring   = "turing"

	replyMaxTokens   = 512
	replyTemperature = 0.8
	retryInterval    = 500 * time.Millisecond
)

// buildLLM creates the ordered provider chain. Providers without an API key
// are skipped.
func buildLLM(cfg *config.Config, log *logger.Logger) (llm.Client, error) {
	settings := map[llm.Provider]llm.ProviderConfig{
		llm.ProviderOpenAI:    {APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel},
		llm.ProviderAnthropic: {APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel},
		llm.ProviderTogether:  {APIKey: cfg.TogetherAPIKey, Model: cfg.TogetherModel, BaseURL: cfg.TogetherBaseURL},
	}

	var providers []llm.Client
	for _, name := range cfg.LLMProviders {
		provider := llm.Provider(name)
		pc, ok := settings[provider]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if pc.APIKey == "" {
			log.Warn("skipping provider without API key", zap.String("provider", name))
			continue
		}
		client, err := llm.NewClient(provider, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", name, err)
		}
		providers = append(providers, llm.WithRetry(client, cfg.GatewayRetries, retryInterval))
	}

	if len(providers) == 0 {
		return nil, llm.ErrNoProviders
	}
	return llm.NewFallback(log, providers...), nil
}

// buildServices creates one chat service per mode over a shared store.
func buildServices(cfg *config.Config, prompts *prompt.Set, client llm.Client, st store.Store, pub service.EventPublisher, log *logger.Logger) (map[string]*service.ChatService, error) {
	realness, err := prompts.Mode(modeRealness)
	if err != nil {
		return nil, err
	}
	turing, err := prompts.Mode(modeTuring)
	if err != nil {
		return nil, err
	}

	endMarker := turing.EndMarker
	if endMarker == "" {
		endMarker = gateway.DefaultEndMarker
	}
	markerParser := gateway.NewMarkerParser(endMarker, 10)

	opts := []service.Option{
		service.WithGatewayTimeout(cfg.GatewayTimeout),
		service.WithMaxMessageLength(cfg.MaxMessageLength),
	}
	if pub != nil {
		opts = append(opts, service.WithPublisher(pub))
	}

	services := map[string]*service.ChatService{
		modeRealness: service.NewChatService(service.Mode{
			Name:          modeRealness,
			RequireChatID: true,
			Instructions:  func() string { return realness.Instructions(nil) },
			ReplyPrefix:   realness.ReplyPrefix,
			Gateway: gateway.New(gateway.Config{
				Client:          client,
				Parser:          gateway.JSONScoreParser{ScoreField: realness.ScoreField},
				UserPrefix:      realness.UserPrefix,
				AssistantPrefix: realness.AssistantPrefix,
				InvertRoles:     realness.InvertRoles,
				MaxTokens:       replyMaxTokens,
				Temperature:     replyTemperature,
			}),
			Evaluator: outcome.Threshold{WinScore: cfg.WinThreshold},
		}, st, log, opts...),

		modeTuring: service.NewChatService(service.Mode{
			Name:         modeTuring,
			Instructions: func() string { return turing.Instructions(nil) },
			ReplyPrefix:  turing.ReplyPrefix,
			Gateway: gateway.New(gateway.Config{
				Client:          client,
				Parser:          markerParser,
				UserPrefix:      turing.UserPrefix,
				AssistantPrefix: turing.AssistantPrefix,
				InvertRoles:     turing.InvertRoles,
				MaxTokens:       replyMaxTokens,
				Temperature:     replyTemperature,
			}),
			Evaluator: outcome.Marker{
				WinScore:        cfg.TuringWinThreshold,
				LowScoreCeiling: cfg.LowScoreCeiling,
				LowStreak:       cfg.LowScoreStreak,
			},
			HasEndMarker:         markerParser.HasEndMarker,
			FailureStatus:        http.StatusTooManyRequests,
			TypingCharsPerMinute: cfg.TypingCharsPerMinute,
		}, st, log, opts...),
	}
	return services, nil
}

// newRouter mounts the HTTP surface.
func newRouter(cfg *config.Config, services map[string]*service.ChatService, st store.Store, nats handler.ConnectionChecker, log *logger.Logger) http.Handler {
	healthHandler := handler.NewHealthHandler(nats)
	realnessHandler := handler.NewChatHandler(services[modeRealness], log)
	turingHandler := handler.NewChatHandler(services[modeTuring], log)
	leaderboardHandler := handler.NewLeaderboardHandler(service.NewLeaderboardService(st), log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/api/chat", realnessHandler.Send)
		r.Post("/chat", turingHandler.Send)
		r.Get("/api/leaderboard", leaderboardHandler.Get)
	})

	return r
}

// sweepSessions evicts expired in-memory sessions until ctx is done.
func sweepSessions(ctx context.Context, st *store.MemoryStore, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				log.Debug("evicted expired sessions", zap.Int("count", n))
			}
		}
	}
}
