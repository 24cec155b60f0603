package mocks

import (
	"context"
	"time"

	"github.com/civicportal/session-core/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) FetchProfile(ctx context.Context, principalID string) (*models.Profile, error) {
	args := m.Called(ctx, principalID)
	profile, _ := args.Get(0).(*models.Profile) // nil when the mock returns no profile
	return profile, args.Error(1)
}

func (m *MockProfileRepository) RecordLogin(ctx context.Context, principalID string, at time.Time, device models.LoginDevice) error {
	args := m.Called(ctx, principalID, at, device)
	return args.Error(0)
}
