package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pairline/internal/domain"
	"github.com/google/uuid"
)

// schema is shared by SQLite and Postgres. Timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS consent_pairs (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		interaction_count INTEGER NOT NULL DEFAULT 0,
		my_agree INTEGER NOT NULL DEFAULT 0,
		partner_agree INTEGER NOT NULL DEFAULT 0,
		step INTEGER NOT NULL DEFAULT 0,
		last_interaction_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (from_id, to_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_pairs_to ON consent_pairs(to_id)`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (user_a, user_b)
	)`,
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Repository on database/sql. The SQLite and Postgres
// constructors differ only in driver, placeholder style and write locking.
type SQLStore struct {
	db          *sql.DB
	dollarBinds bool
	// writeMu serialises writers on SQLite to avoid SQLITE_BUSY. Nil on Postgres.
	writeMu *sync.Mutex
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.dollarBinds {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) lockWrites() func() {
	if s.writeMu == nil {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetDirectedConsent retrieves the (from, to) row.
func (s *SQLStore) GetDirectedConsent(ctx context.Context, from, to string) (*domain.DirectedConsent, error) {
	return getDirectedConsent(ctx, s.db, s.rebind, from, to)
}

func getDirectedConsent(ctx context.Context, q querier, rebind func(string) string, from, to string) (*domain.DirectedConsent, error) {
	query := rebind(`
		SELECT from_id, to_id, interaction_count, my_agree, partner_agree, step,
		       last_interaction_at, created_at, updated_at
		FROM consent_pairs WHERE from_id = ? AND to_id = ?`)

	var c domain.DirectedConsent
	var myAgree, partnerAgree, step int
	var lastInteraction, createdAt, updatedAt int64

	err := q.QueryRowContext(ctx, query, from, to).Scan(
		&c.FromID, &c.ToID, &c.InteractionCount, &myAgree, &partnerAgree, &step,
		&lastInteraction, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan consent row: %w", err)
	}

	c.MyAgree = domain.AgreeLevel(myAgree)
	c.PartnerAgree = domain.AgreeLevel(partnerAgree)
	c.Step = domain.Step(step)
	c.LastInteractionAt = fromMillis(lastInteraction)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// RecordInteraction counts a terminated call between from and to unless the
// previous one is still inside the debounce window.
func (s *SQLStore) RecordInteraction(ctx context.Context, from, to string, now time.Time, debounce time.Duration) (bool, error) {
	unlock := s.lockWrites()
	defer unlock()

	query := s.rebind(`
	INSERT INTO consent_pairs (from_id, to_id, interaction_count, last_interaction_at, created_at, updated_at)
	VALUES (?, ?, 1, ?, ?, ?)
	ON CONFLICT (from_id, to_id) DO UPDATE SET
		interaction_count = consent_pairs.interaction_count + 1,
		last_interaction_at = excluded.last_interaction_at,
		updated_at = excluded.updated_at
	WHERE consent_pairs.last_interaction_at <= ?`)

	nowMs := now.UnixMilli()
	threshold := now.Add(-debounce).UnixMilli()

	result, err := s.db.ExecContext(ctx, query, from, to, nowMs, nowMs, nowMs, threshold)
	if err != nil {
		return false, fmt.Errorf("record interaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// WithConsentTx runs fn inside a single transaction.
func (s *SQLStore) WithConsentTx(ctx context.Context, fn func(tx ConsentTx) error) error {
	unlock := s.lockWrites()
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consent tx: %w", err)
	}

	if err := fn(&sqlConsentTx{tx: tx, rebind: s.rebind, postgres: s.dollarBinds}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("Failed to roll back consent tx", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consent tx: %w", err)
	}
	return nil
}

// DeleteConsentPair removes both directed rows of the pair.
func (s *SQLStore) DeleteConsentPair(ctx context.Context, a, b string) (int64, error) {
	unlock := s.lockWrites()
	defer unlock()

	query := s.rebind(`DELETE FROM consent_pairs
		WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)`)
	result, err := s.db.ExecContext(ctx, query, a, b, b, a)
	if err != nil {
		return 0, fmt.Errorf("delete consent pair: %w", err)
	}
	return result.RowsAffected()
}

// EnsureChatRoom creates the room for the unordered pair if it does not exist.
func (s *SQLStore) EnsureChatRoom(ctx context.Context, a, b string) (bool, error) {
	unlock := s.lockWrites()
	defer unlock()

	userA, userB := domain.PairKey(a, b)
	query := s.rebind(`
	INSERT INTO chat_rooms (id, user_a, user_b, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (user_a, user_b) DO NOTHING`)

	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), userA, userB, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("ensure chat room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		slog.Info("Chat room created", "user_a", userA, "user_b", userB)
	}
	return rows > 0, nil
}

// GetChatRoom retrieves the room for the unordered pair.
func (s *SQLStore) GetChatRoom(ctx context.Context, a, b string) (*domain.ChatRoom, error) {
	userA, userB := domain.PairKey(a, b)
	query := s.rebind(`SELECT id, user_a, user_b, created_at FROM chat_rooms WHERE user_a = ? AND user_b = ?`)

	var room domain.ChatRoom
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(&room.ID, &room.UserA, &room.UserB, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat room: %w", err)
	}
	room.CreatedAt = fromMillis(createdAt)
	return &room, nil
}

type sqlConsentTx struct {
	tx       *sql.Tx
	rebind   func(string) string
	postgres bool
}

// LockPair takes a transaction-scoped advisory lock on Postgres. SQLite writers
// are already serialised by writeMu and the database-level write lock.
func (t *sqlConsentTx) LockPair(ctx context.Context, a, b string) error {
	if !t.postgres {
		return nil
	}
	userA, userB := domain.PairKey(a, b)
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userA+"\x1f"+userB); err != nil {
		return fmt.Errorf("lock consent pair: %w", err)
	}
	return nil
}

func (t *sqlConsentTx) GetDirectedConsent(ctx context.Context, from, to string) (*domain.DirectedConsent, error) {
	return getDirectedConsent(ctx, t.tx, t.rebind, from, to)
}

func (t *sqlConsentTx) UpsertDirectedConsent(ctx context.Context, c *domain.DirectedConsent) error {
	query := t.rebind(`
	INSERT INTO consent_pairs (from_id, to_id, my_agree, partner_agree, step, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (from_id, to_id) DO UPDATE SET
		my_agree = excluded.my_agree,
		partner_agree = excluded.partner_agree,
		step = excluded.step,
		updated_at = excluded.updated_at`)

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.UpdatedAt
	}

	_, err := t.tx.ExecContext(ctx, query,
		c.FromID, c.ToID, int(c.MyAgree), int(c.PartnerAgree), int(c.Step),
		toMillis(createdAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert consent row: %w", err)
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
