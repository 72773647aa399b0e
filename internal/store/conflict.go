package store

import (
	"context"

	"github.com/matheus3301/chronsync/internal/apperr"
)

// RecordConflict appends to the conflict log. DetectedAt defaults to now.
func (db *DB) RecordConflict(ctx context.Context, c ConflictRecord) error {
	if c.DetectedAt == 0 {
		c.DetectedAt = db.now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO conflict_log (visit_id, local_modified, remote_modified, resolution, detected_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.VisitID, c.LocalModified, c.RemoteModified, c.Resolution, c.DetectedAt)
	if err != nil {
		return apperr.Storage("record conflict", err)
	}
	return nil
}

// ListConflicts returns the newest conflicts first. limit <= 0 returns all.
func (db *DB) ListConflicts(ctx context.Context, limit int) ([]ConflictRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, visit_id, local_modified, remote_modified, resolution, detected_at
		FROM conflict_log ORDER BY detected_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Storage("list conflicts", err)
	}
	defer func() { _ = rows.Close() }()

	out := []ConflictRecord{}
	for rows.Next() {
		var c ConflictRecord
		if err := rows.Scan(&c.ID, &c.VisitID, &c.LocalModified, &c.RemoteModified, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, apperr.Storage("list conflicts", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list conflicts", err)
	}
	return out, nil
}
