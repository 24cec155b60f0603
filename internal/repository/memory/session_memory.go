package memory

import (
	"context"
	"sync"
	"time"

	"github.com/civicportal/session-core/internal/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memoryItem struct {
	value  []byte
	expiry time.Time // zero when the item never expires
}

// MemoryScopedStorage implements ScopedStorage in process memory.
// Its lifetime is the lifetime of the client process, like a browser tab's sessionStorage.
type MemoryScopedStorage struct {
	scope string
	items map[string]memoryItem
	mutex sync.RWMutex
	clock clockwork.Clock
}

var _ repository.ScopedStorage = (*MemoryScopedStorage)(nil)

// NewMemoryScopedStorage creates an empty storage with a fresh scope id.
func NewMemoryScopedStorage(clock clockwork.Clock) *MemoryScopedStorage {
	return &MemoryScopedStorage{
		scope: uuid.NewString(),
		items: make(map[string]memoryItem),
		clock: clock,
	}
}

func (r *MemoryScopedStorage) Scope() string {
	return r.scope
}

// SetItem saves or replaces an item.
func (r *MemoryScopedStorage) SetItem(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiry = r.clock.Now().Add(ttl)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items[key] = item
	return nil
}

// GetItem retrieves an item. Items past their backend expiry are dropped and
// reported as absent, as Redis does.
func (r *MemoryScopedStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	item, exists := r.items[key]
	if !exists {
		return nil, repository.ErrItemNotFound
	}
	if !item.expiry.IsZero() && !r.clock.Now().Before(item.expiry) {
		delete(r.items, key)
		return nil, repository.ErrItemNotFound
	}
	return append([]byte(nil), item.value...), nil
}

// RemoveItem deletes an item.
func (r *MemoryScopedStorage) RemoveItem(ctx context.Context, key string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.items, key)
	return nil
}

// Clear drops every item of this scope.
func (r *MemoryScopedStorage) Clear(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items = make(map[string]memoryItem)
	return nil
}

// Len reports the number of raw items held, including expired ones not yet read.
func (r *MemoryScopedStorage) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.items)
}
