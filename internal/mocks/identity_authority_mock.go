package mocks

import (
	"context"
	"sync"

	"github.com/civicportal/session-core/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockIdentityAuthority is a mock implementation of the IdentityAuthority interface.
// Listener registration and the current principal are real state so tests can
// drive principal changes with SetPrincipal.
type MockIdentityAuthority struct {
	mock.Mock

	mu        sync.Mutex
	principal *models.Principal
	nextID    int
	listeners map[int]func(*models.Principal)
}

func (m *MockIdentityAuthority) OnPrincipalChanged(fn func(*models.Principal)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners == nil {
		m.listeners = make(map[int]func(*models.Principal))
	}
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *MockIdentityAuthority) CurrentPrincipal() *models.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// SetPrincipal replaces the current principal and notifies listeners synchronously.
func (m *MockIdentityAuthority) SetPrincipal(p *models.Principal) {
	m.mu.Lock()
	m.principal = p
	listeners := make([]func(*models.Principal), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// Listeners returns the number of registered listeners.
func (m *MockIdentityAuthority) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// ForceRefresh provides a mock function for the authority round-trip.
func (m *MockIdentityAuthority) ForceRefresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Revoke provides a mock function for signing out.
func (m *MockIdentityAuthority) Revoke(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
