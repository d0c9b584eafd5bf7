// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/pairline/internal/config"
	"github.com/ashureev/pairline/internal/domain"
)

// Repository is the data-access boundary for durable consent state and chat rooms.
// All methods are safe for concurrent use.
type Repository interface {
	// GetDirectedConsent retrieves the (from, to) row. Returns nil, nil if absent.
	GetDirectedConsent(ctx context.Context, from, to string) (*domain.DirectedConsent, error)

	// RecordInteraction inserts the (from, to) row with a count of one, or
	// increments its count, in a single conditional upsert. The increment is
	// skipped when the previous interaction happened less than debounce ago.
	// Returns true when the interaction was counted.
	RecordInteraction(ctx context.Context, from, to string, now time.Time, debounce time.Duration) (bool, error)

	// WithConsentTx runs fn inside one transaction so both directed rows of a
	// pair are read and written atomically. fn's error rolls the transaction back.
	WithConsentTx(ctx context.Context, fn func(tx ConsentTx) error) error

	// DeleteConsentPair removes both (a, b) and (b, a) rows.
	DeleteConsentPair(ctx context.Context, a, b string) (int64, error)

	// EnsureChatRoom creates the chat room for the unordered pair if absent.
	// Returns true only for the call that created it.
	EnsureChatRoom(ctx context.Context, a, b string) (bool, error)

	// GetChatRoom retrieves the chat room for the unordered pair. Returns nil, nil if absent.
	GetChatRoom(ctx context.Context, a, b string) (*domain.ChatRoom, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// ConsentTx is the view of the store available inside WithConsentTx.
type ConsentTx interface {
	// LockPair holds the unordered pair (a, b) until the transaction ends, so
	// processes sharing one database cannot interleave writes to it. Rows need
	// not exist yet.
	LockPair(ctx context.Context, a, b string) error

	GetDirectedConsent(ctx context.Context, from, to string) (*domain.DirectedConsent, error)

	// UpsertDirectedConsent writes the agreement and step fields of c.
	// Interaction bookkeeping columns are left untouched on update.
	UpsertDirectedConsent(ctx context.Context, c *domain.DirectedConsent) error
}

// Open returns the repository selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return NewSQLite(ctx, cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}
