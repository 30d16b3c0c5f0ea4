package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/kimhsiao/tijara/backend/internal/errors"
)

// =====================================================
// Key/Value Store
// =====================================================

// GetValue returns the value stored under key and whether it exists.
func (r *Repository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.ErrDatabase, "failed to read key "+key, err)
	}
	return value, true, nil
}

// SetValue creates or replaces the value stored under key.
func (r *Repository) SetValue(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, r.nowMillis()); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to write key "+key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func (r *Repository) DeleteValue(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete key "+key, err)
	}
	return nil
}

// ListValues returns every key with the given prefix.
func (r *Repository) ListValues(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list keys", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}
