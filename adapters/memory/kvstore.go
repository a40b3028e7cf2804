// Package memory provides in-memory adapter implementations for tests and
// ephemeral (non-persistent) runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/personahire/tokenmeter/ports"
)

// ErrUnavailable is returned from all operations after Fail(true).
var ErrUnavailable = errors.New("memory: store unavailable")

// KVStore is an in-memory implementation of ports.KVStore.
// The zero value is not usable; call NewKVStore.
type KVStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	failed bool
}

// NewKVStore creates an empty in-memory key-value store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// Get returns the stored bytes for key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failed {
		return nil, false, ErrUnavailable
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Set overwrites the value for key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return ErrUnavailable
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

// Delete removes the key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return ErrUnavailable
	}
	delete(s.data, key)
	return nil
}

// Fail toggles failure injection: while failed, every operation returns
// ErrUnavailable (for testing gateway degradation paths).
func (s *KVStore) Fail(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = failed
}

// Len returns the number of stored keys (for testing).
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Ensure interface compliance.
var _ ports.KVStore = (*KVStore)(nil)
