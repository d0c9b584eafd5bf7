// Pairline - matchmaking and call signaling server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/pairline/internal/api"
	"github.com/ashureev/pairline/internal/chatroom"
	"github.com/ashureev/pairline/internal/config"
	"github.com/ashureev/pairline/internal/consent"
	"github.com/ashureev/pairline/internal/matchmaking"
	"github.com/ashureev/pairline/internal/middleware"
	"github.com/ashureev/pairline/internal/presence"
	"github.com/ashureev/pairline/internal/signaling"
	"github.com/ashureev/pairline/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	checks := map[string]api.Pinger{"database": repo}

	var guard signaling.AcceptanceGuard
	if cfg.RedisURL != "" {
		redisGuard, err := signaling.NewRedisGuard(cfg.RedisURL, cfg.Acceptance.Retention)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := redisGuard.Close(); closeErr != nil {
				slog.Warn("Failed to close Redis", "error", closeErr)
			}
		}()
		guard = redisGuard
		checks["redis"] = redisGuard
		slog.Info("Acceptance guard backed by Redis", "retention", cfg.Acceptance.Retention)
	} else {
		guard = signaling.NewMemoryGuard(cfg.Acceptance.Retention)
		signaling.StartSweeper(ctx, guard, cfg.Acceptance.SweepInterval)
		slog.Info("Acceptance guard in memory", "retention", cfg.Acceptance.Retention)
	}

	// Chat rooms live in the local store unless a remote chat service is configured.
	var rooms consent.RoomEnsurer = repo
	if cfg.ChatRoomGRPCAddr != "" {
		slog.Info("Attempting to connect to chat service via gRPC", "address", cfg.ChatRoomGRPCAddr)
		client, err := chatroom.NewClient(chatroom.DefaultClientConfig(cfg.ChatRoomGRPCAddr), logger)
		if err != nil {
			slog.Warn("Failed to connect to chat service, rooms will be created locally", "error", err)
		} else {
			defer client.Close()
			rooms = client
		}
	}

	// Initialize services.
	registry := presence.NewRegistry()
	matcher := matchmaking.New(registry, matchmaking.NewWaitingList())
	consentSvc := consent.NewService(repo, rooms, cfg.Consent, cfg.Retry)
	relay := signaling.NewRelay(registry, guard, consentSvc, cfg.Timeout.Bookkeeping)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(cfg.Timeout.HealthCheck, checks)
	matchHandler := api.NewMatchHandler(matcher)
	consentHandler := api.NewConsentHandler(consentSvc)
	wsHandler := signaling.NewWebSocketHandler(registry, matcher, relay, cfg.Signaling, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	matchHandler.RegisterRoutes(r)
	consentHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Hijacked websocket connections outlive Shutdown; cancelling the base
	// context ends their read loops.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	cancelBase()
	relay.Wait()

	slog.Info("Server stopped successfully")
}
