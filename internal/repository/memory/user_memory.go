package memory

import (
	"context"
	"sync"
	"time"

	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/repository"
)

// MemoryProfileRepository implements ProfileRepository in memory (NOT FOR PRODUCTION).
type MemoryProfileRepository struct {
	profiles map[string]models.Profile
	mutex    sync.RWMutex
}

var _ repository.ProfileRepository = (*MemoryProfileRepository)(nil)

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[string]models.Profile),
	}
}

// PutProfile seeds or replaces a profile.
func (r *MemoryProfileRepository) PutProfile(profile models.Profile) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.profiles[profile.PrincipalID] = profile
}

func (r *MemoryProfileRepository) FetchProfile(ctx context.Context, principalID string) (*models.Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	profile, exists := r.profiles[principalID]
	if !exists {
		return nil, repository.ErrProfileNotFound
	}
	return &profile, nil
}

func (r *MemoryProfileRepository) RecordLogin(ctx context.Context, principalID string, at time.Time, device models.LoginDevice) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	profile, exists := r.profiles[principalID]
	if !exists {
		return repository.ErrProfileNotFound
	}
	at = at.UTC()
	profile.LastLogin = &at
	profile.LastLoginDevice = &device
	r.profiles[principalID] = profile
	return nil
}
