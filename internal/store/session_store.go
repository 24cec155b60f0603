package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/repository"
)

// backendTTL outlives MaxSessionDuration so expired entries are still read
// and removed by Get. The backend expiry only reclaims abandoned scopes.
const backendTTL = models.MaxSessionDuration + time.Minute

// SessionStore keeps small session values in the client's scoped storage.
// Every value is wrapped with the time it was written and is treated as absent
// once older than MaxSessionDuration. Storage failures never reach the caller.
type SessionStore struct {
	storage repository.ScopedStorage
	clock   clockwork.Clock
	log     zerolog.Logger
}

func NewSessionStore(storage repository.ScopedStorage, clock clockwork.Clock) *SessionStore {
	return &SessionStore{
		storage: storage,
		clock:   clock,
		log:     logger.Component("session_store").With().Str("scope", storage.Scope()).Logger(),
	}
}

// Set stores value under key, replacing any previous entry.
func (s *SessionStore) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to marshal session value")
		return
	}
	entry, err := json.Marshal(models.StoreEntry{
		Value:     raw,
		WrittenAt: s.clock.Now().UnixMilli(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to marshal session entry")
		return
	}
	if err := s.storage.SetItem(ctx, key, entry, backendTTL); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to write session value")
	}
}

// Get decodes the value stored under key into out and reports whether a
// fresh value was found. Entries past MaxSessionDuration are removed.
func (s *SessionStore) Get(ctx context.Context, key string, out any) bool {
	raw, err := s.storage.GetItem(ctx, key)
	if errors.Is(err, repository.ErrItemNotFound) {
		return false
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to read session value")
		return false
	}

	var entry models.StoreEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("malformed session entry")
		return false
	}

	age := s.clock.Now().UnixMilli() - entry.WrittenAt
	if age > models.MaxSessionDuration.Milliseconds() {
		s.log.Info().Str("key", key).Msg("session entry expired")
		if err := s.storage.RemoveItem(ctx, key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("failed to remove expired session value")
		}
		return false
	}

	if err := json.Unmarshal(entry.Value, out); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("malformed session value")
		return false
	}
	return true
}

// Clear removes every value in this store's scope.
func (s *SessionStore) Clear(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to clear session store")
	}
}
