// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Storage Ports
// -----------------------------------------------------------------------------

// KVStore is the minimal durable key-value contract the persistence gateway
// needs: get a value or report it absent, and overwrite a value. Whether
// the backing medium is a SQLite row, a file, or browser storage is an
// adapter concern.
type KVStore interface {
	// Get returns the stored bytes for key. ok is false when the key has
	// never been written; that is not an error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
