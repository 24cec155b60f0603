package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicportal/session-core/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisScopedStorage implements ScopedStorage using Redis. Every key is
// prefixed with the scope id and tracked in a per-scope index set so Clear
// never touches another scope's data.
type RedisScopedStorage struct {
	client *redis.Client
	scope  string
}

// Helper to construct item key
func makeItemKey(scope, key string) string {
	return fmt.Sprintf("portal:scope:%s:%s", scope, key)
}

// Helper to construct scope index key
func makeScopeIndexKey(scope string) string {
	return fmt.Sprintf("portal:scope:%s:keys", scope)
}

var _ repository.ScopedStorage = (*RedisScopedStorage)(nil)

// NewRedisScopedStorage creates a storage with a fresh scope id.
func NewRedisScopedStorage(client *redis.Client) *RedisScopedStorage {
	return NewRedisScopedStorageWithScope(client, uuid.NewString())
}

// NewRedisScopedStorageWithScope reattaches to an existing scope.
func NewRedisScopedStorageWithScope(client *redis.Client, scope string) *RedisScopedStorage {
	return &RedisScopedStorage{
		client: client,
		scope:  scope,
	}
}

func (r *RedisScopedStorage) Scope() string {
	return r.scope
}

// SetItem stores the value and adds the key to the scope index.
func (r *RedisScopedStorage) SetItem(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("invalid item: key must be set")
	}
	if ttl < 0 {
		ttl = 0
	}

	itemKey := makeItemKey(r.scope, key)
	indexKey := makeScopeIndexKey(r.scope)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, itemKey, value, ttl)
	pipe.SAdd(ctx, indexKey, key)
	if ttl > 0 {
		pipe.Expire(ctx, indexKey, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute item store pipeline: %w", err)
	}
	return nil
}

// GetItem returns ErrItemNotFound when the key is absent or expired by Redis TTL.
func (r *RedisScopedStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, makeItemKey(r.scope, key)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	return data, nil
}

// RemoveItem removes a key and its index entry.
func (r *RedisScopedStorage) RemoveItem(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, makeItemKey(r.scope, key))
	pipe.SRem(ctx, makeScopeIndexKey(r.scope), key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute item delete pipeline: %w", err)
	}
	return nil
}

// Clear deletes every key recorded in the scope index, then the index itself.
func (r *RedisScopedStorage) Clear(ctx context.Context) error {
	indexKey := makeScopeIndexKey(r.scope)

	keys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get scope keys with SMEMBERS: %w", err)
	}

	itemKeys := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		itemKeys = append(itemKeys, makeItemKey(r.scope, k))
	}
	itemKeys = append(itemKeys, indexKey)

	if err := r.client.Del(ctx, itemKeys...).Err(); err != nil {
		return fmt.Errorf("failed to delete scope keys: %w", err)
	}
	return nil
}
