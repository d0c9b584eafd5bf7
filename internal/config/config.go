// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	LogLevel       slog.Level

	DBDriver    string
	DBPath      string
	DatabaseURL string

	RedisURL         string // empty = in-memory acceptance guard
	ChatRoomGRPCAddr string // empty = chat rooms live in the local store

	// ChatRoomListenAddr is where cmd/chatrooms serves the chat-room RPC.
	ChatRoomListenAddr string

	Signaling  SignalingConfig
	Consent    ConsentConfig
	Acceptance AcceptanceConfig
	Retry      RetryConfig
	Timeout    TimeoutConfig
}

// SignalingConfig bounds per-connection websocket traffic.
type SignalingConfig struct {
	ReadLimitBytes    int64
	SendQueueSize     int
	MessagesPerSecond float64
	MessageBurst      int
}

// ConsentConfig controls the consent state machine.
type ConsentConfig struct {
	InteractionDebounce time.Duration
}

// AcceptanceConfig controls duplicate-acceptance suppression.
type AcceptanceConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// RetryConfig controls retries of SQLite writes that hit lock contention.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TimeoutConfig holds operation timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Bookkeeping time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:             getEnv("DB_PATH", "./data/pairline.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		ChatRoomGRPCAddr:   getEnv("CHATROOM_GRPC_ADDR", ""),
		ChatRoomListenAddr: getEnv("CHATROOM_GRPC_LISTEN", ":50061"),
		Signaling: SignalingConfig{
			ReadLimitBytes:    int64(getEnvInt("WS_READ_LIMIT_BYTES", 64*1024)),
			SendQueueSize:     getEnvInt("WS_SEND_QUEUE", 64),
			MessagesPerSecond: getEnvFloat("WS_MESSAGES_PER_SECOND", 50),
			MessageBurst:      getEnvInt("WS_MESSAGE_BURST", 100),
		},
		Consent: ConsentConfig{
			InteractionDebounce: getEnvDuration("INTERACTION_DEBOUNCE", 3*time.Second),
		},
		Acceptance: AcceptanceConfig{
			Retention:     getEnvDuration("ACCEPTANCE_RETENTION", 2*time.Minute),
			SweepInterval: getEnvDuration("ACCEPTANCE_SWEEP_INTERVAL", 30*time.Second),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Bookkeeping: getEnvDuration("BOOKKEEPING_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.Signaling.ReadLimitBytes <= 0 {
		return fmt.Errorf("WS_READ_LIMIT_BYTES must be > 0")
	}
	if c.Signaling.SendQueueSize <= 0 {
		return fmt.Errorf("WS_SEND_QUEUE must be > 0")
	}
	if c.Signaling.MessagesPerSecond <= 0 || c.Signaling.MessageBurst <= 0 {
		return fmt.Errorf("WS_MESSAGES_PER_SECOND and WS_MESSAGE_BURST must be > 0")
	}
	if c.Consent.InteractionDebounce < 0 {
		return fmt.Errorf("INTERACTION_DEBOUNCE cannot be negative")
	}
	if c.Acceptance.Retention <= 0 {
		return fmt.Errorf("ACCEPTANCE_RETENTION must be > 0")
	}
	if c.Acceptance.SweepInterval <= 0 {
		return fmt.Errorf("ACCEPTANCE_SWEEP_INTERVAL must be > 0")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
