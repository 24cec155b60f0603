package mocks

import (
	"context"

	"github.com/civicportal/session-core/internal/models"
	"golang.org/x/oauth2"
)

// MockOAuthAuthority is a mock implementation of the OAuthAuthority interface.
type MockOAuthAuthority struct {
	MockIdentityAuthority
}

func (m *MockOAuthAuthority) AuthCodeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthAuthority) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	token, _ := args.Get(0).(*oauth2.Token)
	return token, args.Error(1)
}

func (m *MockOAuthAuthority) SignIn(ctx context.Context, token *oauth2.Token) (*models.Principal, error) {
	args := m.Called(ctx, token)
	principal, _ := args.Get(0).(*models.Principal)
	return principal, args.Error(1)
}
