package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/history"
)

const entryColumns = `visit_id, url, title, visit_time, referring_visit_id, transition,
	device_id, platform, user_agent, browser_name, browser_version,
	sync_status, last_modified, deleted, has_content, content, summary, extracted_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*history.HistoryEntry, error) {
	var (
		e          history.HistoryEntry
		status     string
		hasContent bool
		pc         history.PageContent
	)
	if err := s.Scan(
		&e.VisitID, &e.URL, &e.Title, &e.VisitTime, &e.ReferringVisitID, &e.Transition,
		&e.DeviceID, &e.Platform, &e.UserAgent, &e.BrowserName, &e.BrowserVersion,
		&status, &e.LastModified, &e.Deleted, &hasContent, &pc.Content, &pc.Summary, &pc.ExtractedAt,
	); err != nil {
		return nil, err
	}
	e.SyncStatus = history.SyncStatus(status)
	if hasContent {
		e.PageContent = &pc
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]history.HistoryEntry, error) {
	defer func() { _ = rows.Close() }()

	entries := []history.HistoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func getEntry(ctx context.Context, q querier, visitID string) (*history.HistoryEntry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE visit_id = ?`, visitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func contentColumns(pc *history.PageContent) (bool, string, string, int64) {
	if pc == nil {
		return false, "", "", 0
	}
	return true, pc.Content, pc.Summary, pc.ExtractedAt
}

func insertEntry(ctx context.Context, q querier, e *history.HistoryEntry, writer string, now int64) error {
	has, content, summary, extractedAt := contentColumns(e.PageContent)
	_, err := q.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`, written_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.VisitID, e.URL, e.Title, e.VisitTime, e.ReferringVisitID, e.Transition,
		e.DeviceID, e.Platform, e.UserAgent, e.BrowserName, e.BrowserVersion,
		string(e.SyncStatus), e.LastModified, e.Deleted, has, content, summary, extractedAt,
		writer, now, now)
	return err
}

// updateMutable rewrites only the fields allowed to change after creation.
func updateMutable(ctx context.Context, q querier, e *history.HistoryEntry, writer string, now int64) error {
	has, content, summary, extractedAt := contentColumns(e.PageContent)
	_, err := q.ExecContext(ctx, `
		UPDATE entries SET
			sync_status = ?, last_modified = ?, deleted = ?,
			has_content = ?, content = ?, summary = ?, extracted_at = ?,
			written_by = ?, updated_at = ?
		WHERE visit_id = ?`,
		string(e.SyncStatus), e.LastModified, e.Deleted,
		has, content, summary, extractedAt,
		writer, now, e.VisitID)
	return err
}

// UpdateFunc receives the stored copy of a visit (nil when absent) and
// returns the row to write, or nil to leave the store untouched.
type UpdateFunc func(existing *history.HistoryEntry) (*history.HistoryEntry, error)

// UpdateEntry runs a read-modify-write of one visit in a single transaction.
// Only mutable fields are rewritten when the row already exists.
func (db *DB) UpdateEntry(ctx context.Context, visitID string, fn UpdateFunc) (Outcome, error) {
	return db.UpdateEntryFrom(ctx, "", visitID, fn)
}

// UpdateEntryFrom is UpdateEntry for a write made on behalf of another
// device. A written row remembers writer until the next write replaces it;
// an empty writer marks a local change.
func (db *DB) UpdateEntryFrom(ctx context.Context, writer, visitID string, fn UpdateFunc) (Outcome, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperr.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getEntry(ctx, tx, visitID)
	if err != nil {
		return "", apperr.Storage("get entry", err)
	}

	next, err := fn(existing)
	if err != nil {
		return "", err
	}
	if next == nil {
		return Unchanged, nil
	}
	if next.VisitID != visitID {
		return "", fmt.Errorf("update entry %s: visit id changed to %s", visitID, next.VisitID)
	}
	if err := next.Validate(); err != nil {
		return "", fmt.Errorf("update entry: %w", err)
	}

	now := db.now()
	outcome := Updated
	if existing == nil {
		outcome = Inserted
		err = insertEntry(ctx, tx, next, writer, now)
	} else {
		err = updateMutable(ctx, tx, next, writer, now)
	}
	if err != nil {
		return "", apperr.Storage("write entry", err)
	}
	if err := tx.Commit(); err != nil {
		return "", apperr.Storage("commit entry", err)
	}
	return outcome, nil
}

// AddEntry stores a locally observed entry. A visit id that is already known
// goes through conflict resolution instead of being overwritten; when the
// new copy wins, the row takes its mutable fields and becomes pending.
func (db *DB) AddEntry(ctx context.Context, e *history.HistoryEntry) (Outcome, error) {
	in := *e
	if in.SyncStatus == "" {
		in.SyncStatus = history.StatusPending
	}
	if in.LastModified == 0 {
		in.LastModified = db.now()
	}
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("add entry: %w", err)
	}

	return db.UpdateEntry(ctx, in.VisitID, func(existing *history.HistoryEntry) (*history.HistoryEntry, error) {
		if existing == nil {
			return &in, nil
		}
		if history.Resolve(existing, &in).Winner != history.Incoming {
			return nil, nil
		}
		next := existing.ApplyMutable(&in)
		next.SyncStatus = history.StatusPending
		return &next, nil
	})
}

// AddIfAbsent stores a freshly captured entry unless its visit id is already
// known, and returns the stored row. A known visit is left as it is, so a
// replayed capture never undoes a delete or drops attached content.
func (db *DB) AddIfAbsent(ctx context.Context, e *history.HistoryEntry) (*history.HistoryEntry, Outcome, error) {
	in := *e
	if in.SyncStatus == "" {
		in.SyncStatus = history.StatusPending
	}
	if in.LastModified == 0 {
		in.LastModified = db.now()
	}
	if err := in.Validate(); err != nil {
		return nil, "", fmt.Errorf("add entry: %w", err)
	}

	var stored *history.HistoryEntry
	out, err := db.UpdateEntry(ctx, in.VisitID, func(existing *history.HistoryEntry) (*history.HistoryEntry, error) {
		if existing != nil {
			stored = existing
			return nil, nil
		}
		stored = &in
		return &in, nil
	})
	if err != nil {
		return nil, "", err
	}
	return stored, out, nil
}

// GetEntry returns the stored copy of a visit, or nil if unknown.
func (db *DB) GetEntry(ctx context.Context, visitID string) (*history.HistoryEntry, error) {
	e, err := getEntry(ctx, db, visitID)
	if err != nil {
		return nil, apperr.Storage("get entry", err)
	}
	return e, nil
}

// GetEntries lists entries newest visit first. Tombstones are excluded
// unless q.IncludeDeleted is set. No match yields an empty slice.
func (db *DB) GetEntries(ctx context.Context, q EntryQuery) ([]history.HistoryEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if q.DeviceID != "" {
		clauses = append(clauses, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if q.Since > 0 {
		clauses = append(clauses, "visit_time >= ?")
		args = append(args, q.Since)
	}
	if !q.IncludeDeleted {
		clauses = append(clauses, "deleted = 0")
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY visit_time DESC, visit_id DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(q.Offset, 0))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("list entries", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, apperr.Storage("list entries", err)
	}
	return entries, nil
}

// GetUnsyncedEntries returns every pending entry, tombstones included,
// oldest modification first.
func (db *DB) GetUnsyncedEntries(ctx context.Context) ([]history.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE sync_status = 'pending'
		ORDER BY last_modified ASC, visit_id ASC`)
	if err != nil {
		return nil, apperr.Storage("list unsynced", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, apperr.Storage("list unsynced", err)
	}
	return entries, nil
}

// ChangedSince returns entries whose row was written at or after since
// (store clock, ms), tombstones included.
func (db *DB) ChangedSince(ctx context.Context, since int64) ([]history.HistoryEntry, error) {
	return db.ChangedSinceExcept(ctx, since, "")
}

// ChangedSinceExcept is ChangedSince without the rows whose latest write
// came from writer. An empty writer excludes nothing.
func (db *DB) ChangedSinceExcept(ctx context.Context, since int64, writer string) ([]history.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE updated_at >= ? AND (? = '' OR written_by <> ?)
		ORDER BY updated_at ASC, visit_id ASC`, since, writer, writer)
	if err != nil {
		return nil, apperr.Storage("list changed", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, apperr.Storage("list changed", err)
	}
	return entries, nil
}

// MarkAsSynced flags the given visits as synced. Unknown ids are ignored.
func (db *DB) MarkAsSynced(ctx context.Context, visitIDs ...string) error {
	if len(visitIDs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range visitIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET sync_status = 'synced' WHERE visit_id = ?`, id); err != nil {
			return apperr.Storage("mark synced", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage("mark synced", err)
	}
	return nil
}

// MarkSentAsSynced flags sent entries as synced, skipping any row whose
// mutable state changed after it was read for sending. It returns the
// number of rows marked.
func (db *DB) MarkSentAsSynced(ctx context.Context, sent []history.HistoryEntry) (int64, error) {
	if len(sent) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var marked int64
	for _, e := range sent {
		res, err := tx.ExecContext(ctx, `
			UPDATE entries SET sync_status = 'synced'
			WHERE visit_id = ? AND last_modified = ? AND deleted = ? AND sync_status = 'pending'`,
			e.VisitID, e.LastModified, e.Deleted)
		if err != nil {
			return 0, apperr.Storage("mark sent", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, apperr.Storage("mark sent", err)
		}
		marked += n
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage("mark sent", err)
	}
	return marked, nil
}

// bumpModified returns a modification time strictly after prev, using now
// when the local clock is ahead.
func bumpModified(prev, now int64) int64 {
	if now > prev {
		return now
	}
	return prev + 1
}

// DeleteEntry turns a visit into a tombstone so the deletion propagates.
// Unknown ids and existing tombstones are left alone and report Unchanged.
func (db *DB) DeleteEntry(ctx context.Context, visitID string) (Outcome, error) {
	return db.UpdateEntry(ctx, visitID, func(existing *history.HistoryEntry) (*history.HistoryEntry, error) {
		if existing == nil || existing.Deleted {
			return nil, nil
		}
		next := *existing
		next.Deleted = true
		next.PageContent = nil
		next.LastModified = bumpModified(existing.LastModified, db.now())
		next.SyncStatus = history.StatusPending
		return &next, nil
	})
}

// AttachPageContent stores extracted content for a live visit and marks it
// pending. Unknown ids and tombstones are left alone and report Unchanged.
func (db *DB) AttachPageContent(ctx context.Context, visitID string, pc history.PageContent) (Outcome, error) {
	return db.UpdateEntry(ctx, visitID, func(existing *history.HistoryEntry) (*history.HistoryEntry, error) {
		if existing == nil || existing.Deleted {
			return nil, nil
		}
		next := *existing
		next.PageContent = &pc
		next.LastModified = bumpModified(existing.LastModified, db.now())
		next.SyncStatus = history.StatusPending
		return &next, nil
	})
}

// PurgeTombstones physically removes synced tombstones last modified
// before olderThan (ms).
func (db *DB) PurgeTombstones(ctx context.Context, olderThan int64) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM entries
		WHERE deleted = 1 AND sync_status = 'synced' AND last_modified < ?`, olderThan)
	if err != nil {
		return 0, apperr.Storage("purge tombstones", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("purge tombstones", err)
	}
	return n, nil
}

// Stats returns row counts for status display.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN sync_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted = 1 THEN 1 ELSE 0 END), 0)
		FROM entries`).Scan(&s.Entries, &s.Pending, &s.Tombstones)
	if err != nil {
		return nil, apperr.Storage("stats", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&s.Devices); err != nil {
		return nil, apperr.Storage("stats", err)
	}
	return &s, nil
}
