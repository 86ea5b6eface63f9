// ABOUTME: Connection directory backed by the wearable_connections table.
// ABOUTME: Maps provider-assigned device ids to internal users and providers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/healthscore/internal/models"
)

// LookupDevice resolves an external device id. Inactive connections still
// resolve; deliveries for a disconnected device are attributed to its owner.
func (d *DB) LookupDevice(ctx context.Context, externalDeviceID string) (*models.WearableConnection, error) {
	query := `
		SELECT external_device_id, user_id, provider, active, created_at
		FROM wearable_connections
		WHERE external_device_id = ?
	`
	c, err := scanConnection(d.db.QueryRowContext(ctx, query, externalDeviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup device %s: %w", externalDeviceID, ErrNotFound)
		}
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	return c, nil
}

// DeviceIDsForUser returns every device id the user has ever connected,
// active or not, in a stable order.
func (d *DB) DeviceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT external_device_id FROM wearable_connections
		WHERE user_id = ?
		ORDER BY external_device_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("device ids for user: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConnections lists connections, optionally for one user.
func (d *DB) ListConnections(ctx context.Context, userID string) ([]*models.WearableConnection, error) {
	query := `
		SELECT external_device_id, user_id, provider, active, created_at
		FROM wearable_connections
	`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id, provider, external_device_id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.WearableConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UpsertConnection records or relinks a device. Account linking owns this
// table in production; the service only uses it for operator seeding and tests.
func (d *DB) UpsertConnection(ctx context.Context, c *models.WearableConnection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO wearable_connections (external_device_id, user_id, provider, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_device_id) DO UPDATE SET
			user_id = excluded.user_id,
			provider = excluded.provider,
			active = excluded.active
	`, c.ExternalDeviceID, c.UserID, c.Provider, c.Active, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// SetConnectionActive flips the active flag without touching history.
func (d *DB) SetConnectionActive(ctx context.Context, externalDeviceID string, active bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE wearable_connections SET active = ? WHERE external_device_id = ?`,
		active, externalDeviceID)
	if err != nil {
		return fmt.Errorf("set connection active: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set connection active: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set connection active %s: %w", externalDeviceID, ErrNotFound)
	}
	return nil
}

func scanConnection(row scanner) (*models.WearableConnection, error) {
	var c models.WearableConnection
	var createdAt string
	if err := row.Scan(&c.ExternalDeviceID, &c.UserID, &c.Provider, &c.Active, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}
