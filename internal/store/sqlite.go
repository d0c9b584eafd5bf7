package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every pooled connection. WAL lets readers run
// while the single writer holds writeMu.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// NewSQLite opens (creating if needed) the database file at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s, err := open(ctx, &SQLStore{db: db, writeMu: &sync.Mutex{}})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	dsn := path + "?"
	for i, p := range sqlitePragmas {
		if i > 0 {
			dsn += "&"
		}
		dsn += "_pragma=" + p
	}
	return dsn
}
