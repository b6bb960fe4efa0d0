package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const lastRefreshKey = "origin_last_refresh"

// SaveOriginMap replaces the stored mapping with m in one transaction.
func (d *Database) SaveOriginMap(ctx context.Context, m map[string]string, refreshedAt time.Time) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	defer func() { recordQuery("save_origin_map", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM origin_map"); err != nil {
		return fmt.Errorf("clear origin map: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO origin_map (media_id, origin_key, updated_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := refreshedAt.Unix()
	for id, key := range m {
		if _, err = stmt.ExecContext(ctx, id, key, ts); err != nil {
			return fmt.Errorf("insert %s: %w", id, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastRefreshKey, refreshedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record refresh time: %w", err)
	}

	return tx.Commit()
}

// LoadOriginMap returns the stored mapping and when it was refreshed. An empty
// database returns an empty map and the zero time.
func (d *Database) LoadOriginMap(ctx context.Context) (m map[string]string, refreshedAt time.Time, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	defer func() { recordQuery("load_origin_map", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT media_id, origin_key FROM origin_map")
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	m = make(map[string]string)
	for rows.Next() {
		var id, key string
		if err = rows.Scan(&id, &key); err != nil {
			return nil, time.Time{}, err
		}
		m[id] = key
	}
	if err = rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	var value string
	err = d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", lastRefreshKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return m, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	refreshedAt, err = time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse refresh time: %w", err)
	}
	return m, refreshedAt, nil
}
