package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	getQuery = `SELECT value FROM kv_entries WHERE key = $1`

	setQuery = `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	deleteQuery = `DELETE FROM kv_entries WHERE key = $1`
)

// Store implements store.Store on the kv_entries table. Values are kept as
// text so they read back byte for byte.
type Store struct {
	db  database.DBTX
	now func() time.Time
}

// New creates a PostgreSQL-backed store.
func New(db database.DBTX) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, "kv.get", getQuery)
	defer func() { end(err) }()

	var value string
	if err := s.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("store entry", key)
		}
		return nil, fmt.Errorf("select kv entry %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, "kv.set", setQuery)
	defer func() { end(err) }()

	if _, err := s.db.Exec(ctx, setQuery, key, string(value), s.now()); err != nil {
		return fmt.Errorf("upsert kv entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, "kv.delete", deleteQuery)
	defer func() { end(err) }()

	if _, err := s.db.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}
