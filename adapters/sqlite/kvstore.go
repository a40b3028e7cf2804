package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/personahire/tokenmeter/ports"
)

// KVStore implements ports.KVStore using SQLite.
type KVStore struct {
	db *DB
}

// NewKVStore creates a new SQLite key-value store.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the stored bytes for key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set overwrites the value for key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

// Delete removes the key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Ensure interface compliance.
var _ ports.KVStore = (*KVStore)(nil)
