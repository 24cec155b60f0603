package repository

import (
	"context"
	"errors"
	"time"
)

// ErrItemNotFound is returned when a key was never written or has been removed.
var ErrItemNotFound = errors.New("session item not found")

// ScopedStorage is raw key/value storage private to one client session scope (one tab).
// Implementations must never expose or remove keys written by another scope.
type ScopedStorage interface {
	// SetItem stores raw bytes under key. ttl <= 0 means no backend expiry.
	SetItem(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetItem returns ErrItemNotFound if the key is absent.
	GetItem(ctx context.Context, key string) ([]byte, error)
	// RemoveItem is idempotent.
	RemoveItem(ctx context.Context, key string) error
	// Clear removes every key written in this scope.
	Clear(ctx context.Context) error
	// Scope identifies the owning client session scope.
	Scope() string
}
