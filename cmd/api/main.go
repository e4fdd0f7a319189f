// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"

	"github.com/folioworks/portfolio-assistant/internal/config"
	"github.com/folioworks/portfolio-assistant/internal/conversation"
	"github.com/folioworks/portfolio-assistant/internal/handler"
	"github.com/folioworks/portfolio-assistant/internal/memory"
	"github.com/folioworks/portfolio-assistant/internal/middleware"
	natsclient "github.com/folioworks/portfolio-assistant/internal/nats"
	"github.com/folioworks/portfolio-assistant/internal/provider"
	"github.com/folioworks/portfolio-assistant/internal/qdrant"
	"github.com/folioworks/portfolio-assistant/internal/run"
	"github.com/folioworks/portfolio-assistant/internal/service"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/internal/tools"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "portfolio-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	if cfg.OpenAIAPIKey == "" {
		log.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	// Vector store
	vectorStore, err := qdrant.New(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		VectorDim:  cfg.VectorDim,
	}, log)
	if err != nil {
		log.Error("failed to create qdrant client", "error", err)
		os.Exit(1)
	}
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		log.Error("failed to ensure qdrant collection", "error", err)
		os.Exit(1)
	}

	// Memory index and context assembler
	embedder := memory.NewOpenAIEmbedder(openaiClient, cfg.EmbeddingModel)
	index := memory.NewIndex(embedder, vectorStore, memory.Config{
		PersonalThreshold: cfg.PersonalThreshold,
		GlobalThreshold:   cfg.GlobalThreshold,
		PersonalLimit:     cfg.PersonalLimit,
		GlobalLimit:       cfg.GlobalLimit,
	}, log)
	assembler := memory.NewAssembler(index, cfg.GlobalEnabled, log)

	// Optional NATS audit stream
	var natsConn *natsclient.Client
	var events *natsclient.StreamManager
	if cfg.NATSEnabled {
		natsConn, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()

		events = natsclient.NewStreamManager(natsConn)
		if err := events.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", "error", err)
			os.Exit(1)
		}
	}

	// Core services
	store := storage.NewMemStore()
	prov, err := provider.NewOpenAIProvider(openaiClient, cfg.AssistantID, tools.Definitions(), log)
	if err != nil {
		log.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	conversations := conversation.NewManager(store, prov, log)
	dispatcher := tools.NewDispatcher(store, log)
	engine := run.NewEngine(prov, dispatcher, run.Config{
		PollInterval: cfg.RunPollInterval,
		MaxWait:      cfg.RunMaxWait,
	}, log)
	chatSvc := service.NewChatService(store, conversations, engine, assembler, index, events, cfg.MemoryScope, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsConn)
	chatHandler := handler.NewChatHandler(chatSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chats/{id}", func(r chi.Router) {
			r.Delete("/", chatHandler.DeleteChat)
			r.Get("/messages", chatHandler.ListMessages)
			r.Post("/messages", chatHandler.SendMessage)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
