package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard keeps acceptance records in Redis so several relay processes
// share one suppression window. Expiry is delegated to key TTLs.
type RedisGuard struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisGuard connects to redisURL and verifies the connection.
func NewRedisGuard(redisURL string, retention time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisGuardWithClient(client, retention), nil
}

// NewRedisGuardWithClient creates a guard from an existing client.
func NewRedisGuardWithClient(client *redis.Client, retention time.Duration) *RedisGuard {
	return &RedisGuard{client: client, prefix: "accept:", retention: retention}
}

func (g *RedisGuard) key(receiver, caller string) string {
	return g.prefix + receiver + ":" + caller
}

// Claim implements AcceptanceGuard with SET NX.
func (g *RedisGuard) Claim(ctx context.Context, receiver, caller string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(receiver, caller), time.Now().UnixMilli(), g.retention).Result()
	if err != nil {
		return false, fmt.Errorf("claim acceptance: %w", err)
	}
	return ok, nil
}

// Sweep is a no-op; Redis expires records itself.
func (g *RedisGuard) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Ping checks if Redis is reachable.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
