package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/history"
)

const deviceColumns = `device_id, platform, browser_name, browser_version, user_agent, last_seen`

func scanDevice(s rowScanner) (*history.DeviceInfo, error) {
	var d history.DeviceInfo
	if err := s.Scan(&d.DeviceID, &d.Platform, &d.BrowserName, &d.BrowserVersion, &d.UserAgent, &d.LastSeen); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDevice upserts a device record. LastSeen never moves backwards.
func (db *DB) UpdateDevice(ctx context.Context, d history.DeviceInfo) error {
	if d.DeviceID == "" {
		return fmt.Errorf("update device: %w", history.ErrMissingDeviceID)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			platform        = excluded.platform,
			browser_name    = excluded.browser_name,
			browser_version = excluded.browser_version,
			user_agent      = excluded.user_agent,
			last_seen       = MAX(devices.last_seen, excluded.last_seen)`,
		d.DeviceID, d.Platform, d.BrowserName, d.BrowserVersion, d.UserAgent, d.LastSeen)
	if err != nil {
		return apperr.Storage("update device", err)
	}
	return nil
}

// GetDevices lists every known device, most recently seen first.
func (db *DB) GetDevices(ctx context.Context) ([]history.DeviceInfo, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY last_seen DESC, device_id ASC`)
	if err != nil {
		return nil, apperr.Storage("list devices", err)
	}
	defer func() { _ = rows.Close() }()

	devices := []history.DeviceInfo{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, apperr.Storage("list devices", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list devices", err)
	}
	return devices, nil
}

// GetDevice returns one device, or nil if unknown.
func (db *DB) GetDevice(ctx context.Context, deviceID string) (*history.DeviceInfo, error) {
	d, err := scanDevice(db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get device", err)
	}
	return d, nil
}
