package mocks

import (
	"context"

	"github.com/civicportal/session-core/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockSessionLifecycle is a mock implementation of the SessionLifecycle interface.
type MockSessionLifecycle struct {
	mock.Mock
}

func (m *MockSessionLifecycle) Snapshot() models.SessionSnapshot {
	args := m.Called()
	return args.Get(0).(models.SessionSnapshot)
}

func (m *MockSessionLifecycle) ExtendSession() {
	m.Called()
}

func (m *MockSessionLifecycle) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionLifecycle) Subscribe(buffer int) (<-chan models.SessionEvent, func()) {
	args := m.Called(buffer)
	ch, _ := args.Get(0).(chan models.SessionEvent)
	cancel, _ := args.Get(1).(func())
	return ch, cancel
}
