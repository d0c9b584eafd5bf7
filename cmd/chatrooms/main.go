// Chatrooms - serves chat-room creation over gRPC from the pairline store
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/pairline/internal/chatroom"
	"github.com/ashureev/pairline/internal/config"
	"github.com/ashureev/pairline/internal/store"
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

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	lis, err := net.Listen("tcp", cfg.ChatRoomListenAddr)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.ChatRoomListenAddr, "error", err)
		os.Exit(1)
	}

	slog.Info("Chat room service listening", "addr", lis.Addr().String(), "db_driver", cfg.DBDriver)
	if err := chatroom.Serve(ctx, lis, repo); err != nil {
		slog.Error("Chat room service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Chat room service stopped")
}
