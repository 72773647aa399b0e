package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/matheus3301/chronsync/internal/apperr"
)

// Well-known sync_state keys.
const (
	KeyLastSyncTime  = "last_sync_time"
	KeyLocalDeviceID = "local_device_id"
)

// GetState reads a sync_state value. Missing keys return "" and ok=false.
func (db *DB) GetState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Storage("get state", err)
	}
	return v, true, nil
}

// SetState writes a sync_state value.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, db.now())
	if err != nil {
		return apperr.Storage("set state", err)
	}
	return nil
}
