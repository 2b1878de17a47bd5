package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/skumate/internal/errors"
)

// KV is a string key/value store over the kv table.
// It backs client-side state that lives under a fixed key, such as the cart.
type KV struct {
	db *sql.DB
}

// NewKV wraps an initialized database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Get returns the value stored under key. found is false when the key is absent.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistence("read "+key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
// Concurrent writers to the same key are last-write-wins.
func (s *KV) Put(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return errors.NewPersistence("write "+key, err)
	}
	return nil
}
