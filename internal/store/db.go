package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/clock"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection backing a profile's history store.
type DB struct {
	*sql.DB
	clock clock.Clock
}

// Option configures Open.
type Option func(*DB)

// WithClock sets the clock used for bookkeeping timestamps.
func WithClock(c clock.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// Open creates a SQLite connection with WAL mode and recommended pragmas.
// SQLite allows one writer at a time, so the pool is held to a single
// connection; every multi-statement operation runs in one transaction.
func Open(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Storage("open db", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, apperr.Storage("open db", fmt.Errorf("ping: %w", err))
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, clock: clock.New()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func (db *DB) now() int64 {
	return clock.NowMillis(db.clock)
}
