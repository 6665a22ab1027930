package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresBlobRepository stores blobs in a single key/value table.
type PostgresBlobRepository struct {
	db *sqlx.DB
}

// NewPostgresBlobRepository constructs the repository.
func NewPostgresBlobRepository(db *sqlx.DB) *PostgresBlobRepository {
	return &PostgresBlobRepository{db: db}
}

// Init creates the blob table when it does not exist yet.
func (r *PostgresBlobRepository) Init(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS timetable_blobs (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("init blob table: %w", err)
	}
	return nil
}

// Get fetches a blob by key; a missing key yields the empty string.
func (r *PostgresBlobRepository) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM timetable_blobs WHERE key = $1`
	var value string
	if err := r.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get blob %s: %w", key, err)
	}
	return value, nil
}

// Set inserts or overwrites a blob.
func (r *PostgresBlobRepository) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO timetable_blobs (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set blob %s: %w", key, err)
	}
	return nil
}

// Delete removes blobs by key. Missing keys are ignored.
func (r *PostgresBlobRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM timetable_blobs WHERE key IN (%s)`, placeholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
