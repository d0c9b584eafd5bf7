package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("expected default port 5000, got %q", cfg.Port)
	}
	if cfg.ChatRoomListenAddr != ":50061" {
		t.Errorf("expected default chat room listen address :50061, got %q", cfg.ChatRoomListenAddr)
	}
	if cfg.Consent.InteractionDebounce != 3*time.Second {
		t.Errorf("expected 3s debounce, got %s", cfg.Consent.InteractionDebounce)
	}
	if cfg.Acceptance.Retention != 2*time.Minute {
		t.Errorf("expected 2m retention, got %s", cfg.Acceptance.Retention)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INTERACTION_DEBOUNCE", "500ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WS_MESSAGES_PER_SECOND", "12.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Consent.InteractionDebounce != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.Consent.InteractionDebounce)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.Signaling.MessagesPerSecond != 12.5 {
		t.Errorf("expected 12.5 msg/s, got %v", cfg.Signaling.MessagesPerSecond)
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing for postgres")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := map[string]bool{
		"":                         true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:5173":    true,
		"https://pairline.example": false,
	}
	for url, want := range cases {
		cfg := &Config{FrontendURL: url}
		if got := cfg.IsDevelopment(); got != want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", url, got, want)
		}
	}
}
