package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgres connects to databaseURL through the pgx database/sql driver.
func NewPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	s, err := open(ctx, &SQLStore{db: db, dollarBinds: true})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// open verifies connectivity and creates the schema, closing the pool on failure.
func open(ctx context.Context, s *SQLStore) (*SQLStore, error) {
	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := s.initSchema(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}
