package mocks

import (
	"github.com/civicportal/session-core/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockActivityPublisher struct {
	mock.Mock
}

func (m *MockActivityPublisher) Publish(kind models.ActivityKind) bool {
	args := m.Called(kind)
	return args.Bool(0)
}
