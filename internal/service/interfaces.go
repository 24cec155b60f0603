package service

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/civicportal/session-core/internal/models"
)

// IdentityAuthority is the external authority that owns the signed-in principal.
type IdentityAuthority interface {
	// OnPrincipalChanged registers fn for every principal change; nil means signed out.
	// Listeners are called synchronously, never while the authority holds its own lock.
	OnPrincipalChanged(fn func(*models.Principal)) (unsubscribe func())
	// CurrentPrincipal returns nil when nobody is signed in.
	CurrentPrincipal() *models.Principal
	// ForceRefresh round-trips to the authority. Any error means the credential is no longer valid.
	ForceRefresh(ctx context.Context) error
	// Revoke signs the principal out and notifies listeners with nil.
	Revoke(ctx context.Context) error
}

// OAuthAuthority is the IdentityAuthority driven by the authorization code flow.
type OAuthAuthority interface {
	IdentityAuthority
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	SignIn(ctx context.Context, token *oauth2.Token) (*models.Principal, error)
}

// LocalAuthority is the development IdentityAuthority issuing its own credentials.
type LocalAuthority interface {
	IdentityAuthority
	SignIn(ctx context.Context, principal models.Principal) (string, error)
	Token() string
}

// ActivitySource delivers user interaction events.
type ActivitySource interface {
	Subscribe(kinds []models.ActivityKind, fn func(models.ActivityKind)) (unsubscribe func())
}

// ActivityPublisher accepts interaction events from the UI layer.
type ActivityPublisher interface {
	// Publish reports whether the kind is tracked.
	Publish(kind models.ActivityKind) bool
}

// SessionLifecycle is the controller surface used by the HTTP bridge.
type SessionLifecycle interface {
	Snapshot() models.SessionSnapshot
	ExtendSession()
	Logout(ctx context.Context) error
	Subscribe(buffer int) (<-chan models.SessionEvent, func())
}
