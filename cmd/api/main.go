// Package main is the entry point for the chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/soulproof/chat-server/internal/config"
	"github.com/soulproof/chat-server/internal/handler"
	natsclient "github.com/soulproof/chat-server/internal/nats"
	"github.com/soulproof/chat-server/internal/prompt"
	"github.com/soulproof/chat-server/internal/service"
	"github.com/soulproof/chat-server/internal/store"
	"github.com/soulproof/chat-server/pkg/logger"
	"github.com/soulproof/chat-server/pkg/tracing"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting chat server")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "soulproof-chat-server", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		log.Fatal("failed to load prompts", zap.Error(err))
	}

	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		log.Fatal("failed to configure LLM providers", zap.Error(err))
	}

	var (
		st        store.Store
		publisher service.EventPublisher
		readiness handler.ConnectionChecker
	)

	if cfg.NATSEnabled() {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()
		readiness = natsClient

		if cfg.StoreBackend == config.StoreNATS {
			kv, err := natsClient.EnsureBucket(ctx, cfg.NATSSessionBucket, cfg.SessionTTL)
			if err != nil {
				log.Fatal("failed to ensure session bucket", zap.Error(err))
			}
			st = store.NewNATSStore(kv)
		}

		if cfg.NATSAuditEnabled {
			streamManager := natsclient.NewStreamManager(natsClient, cfg.NATSAuditStream)
			if err := streamManager.EnsureStream(ctx); err != nil {
				log.Fatal("failed to ensure audit stream", zap.Error(err))
			}
			publisher = streamManager
		}
	}

	if st == nil {
		memStore := store.NewMemoryStore(cfg.SessionTTL)
		if cfg.SessionTTL > 0 {
			go sweepSessions(ctx, memStore, cfg.SessionTTL/4+time.Second, log)
		}
		st = memStore
	}

	services, err := buildServices(cfg, prompts, llmClient, st, publisher, log)
	if err != nil {
		log.Fatal("failed to build chat services", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, services, st, readiness, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("store", cfg.StoreBackend),
			zap.String("providers", llmClient.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	stop()

	log.Info("server stopped")
}
