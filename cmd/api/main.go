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
	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/config"
	"github.com/netpilot-ai/assistant-core/internal/handler"
	"github.com/netpilot-ai/assistant-core/internal/llm"
	"github.com/netpilot-ai/assistant-core/internal/middleware"
	natsclient "github.com/netpilot-ai/assistant-core/internal/nats"
	"github.com/netpilot-ai/assistant-core/internal/service"
	"github.com/netpilot-ai/assistant-core/internal/store"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
	"github.com/netpilot-ai/assistant-core/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	catalog := config.LoadModelCatalog()

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
		tp, err := tracing.InitTracer(ctx, "assistant-core", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Initialize the conversation storage backend
	var backend store.Backend
	var pinger handler.Pinger
	if cfg.StoreBackend == "nats" {
		natsClient, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		backend, err = store.NewKVBackend(ctx, natsClient.JetStream(), cfg.StoreBucket)
		if err != nil {
			log.Error("failed to open KV bucket", zap.Error(err))
			os.Exit(1)
		}
		pinger = natsClient
	} else {
		backend, err = store.NewFileBackend(cfg.StoreDir)
		if err != nil {
			log.Error("failed to open store directory", zap.Error(err))
			os.Exit(1)
		}
	}
	st := store.New(backend, log)

	// Initialize provider clients
	var clients []llm.Client
	if cfg.DeepSeekAPIKey != "" {
		c, err := llm.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.LLMTimeout, catalog.DeepSeek)
		if err != nil {
			log.Warn("failed to create DeepSeek client", zap.Error(err))
		} else {
			clients = append(clients, c)
		}
	}
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, catalog.OpenAI)
		if err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			clients = append(clients, c)
		}
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey, catalog.Anthropic)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			clients = append(clients, c)
		}
	}
	if len(clients) == 0 {
		log.Warn("no provider API keys configured, sends will be rejected")
	}
	router := llm.NewRouter(clients...)

	// The catalog only advertises models a configured provider serves.
	configured := config.ModelCatalog{}
	for _, c := range clients {
		switch c.Name() {
		case "deepseek":
			configured.DeepSeek = catalog.DeepSeek
		case "openai":
			configured.OpenAI = catalog.OpenAI
		case "anthropic":
			configured.Anthropic = catalog.Anthropic
		}
	}
	registry := llm.NewRegistry(configured.ModelInfos(), router)

	// Initialize services
	chatSvc := service.NewChatService(router, st, log,
		cfg.RenderInterval, cfg.RetryMaxAttempts, cfg.RetryBaseDelay)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pinger)
	chatHandler := handler.NewChatHandler(chatSvc, cfg.DefaultModel, log)
	streamHandler := handler.NewStreamHandler(chatSvc, cfg.DefaultModel, log)
	modelsHandler := handler.NewModelsHandler(registry, log)
	conversationHandler := handler.NewConversationHandler(chatSvc, log)

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
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

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chatHandler.Send)
			r.Post("/stream", streamHandler.StreamWithMessage)
			r.Post("/abort", chatHandler.Abort)
			r.Get("/status", chatHandler.Status)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelsHandler.List)
			r.Get("/{model}/status", modelsHandler.Status)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Delete("/", conversationHandler.DeleteAll)
			r.Get("/{model}", conversationHandler.Get)
			r.Delete("/{model}", conversationHandler.Delete)
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
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
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
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
