package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/config"
	"github.com/civicportal/session-core/internal/models"
)

const localIssuer = "civicportal-session-core"

// LocalClaims are the claims of a credential minted by LocalIdentityAuthority.
type LocalClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// LocalIdentityAuthority is a development IdentityAuthority that issues its
// own HS256 credentials. Only the most recently issued credential is valid.
type LocalIdentityAuthority struct {
	secret    []byte
	ttl       time.Duration
	clock     clockwork.Clock
	listeners principalListeners

	mu        sync.Mutex
	principal *models.Principal
	token     string
	tokenID   string
}

var _ LocalAuthority = (*LocalIdentityAuthority)(nil)

func NewLocalIdentityAuthority(secret string, ttl time.Duration, clock clockwork.Clock) *LocalIdentityAuthority {
	return &LocalIdentityAuthority{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// SignIn issues a credential for principal and makes it the current principal.
func (a *LocalIdentityAuthority) SignIn(ctx context.Context, principal models.Principal) (string, error) {
	if principal.ID == "" {
		return "", errors.New("principal id must be set")
	}
	principal.Provider = config.IdentityProviderLocal

	token, id, err := a.issue(principal)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.principal = &principal
	a.token, a.tokenID = token, id
	a.mu.Unlock()

	log.Info().Str("subject", principal.ID).Msg("Principal signed in")
	a.listeners.notify(&principal)
	return token, nil
}

func (a *LocalIdentityAuthority) OnPrincipalChanged(fn func(*models.Principal)) func() {
	return a.listeners.add(fn)
}

func (a *LocalIdentityAuthority) CurrentPrincipal() *models.Principal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.principal == nil {
		return nil
	}
	p := *a.principal
	return &p
}

// Token returns the current credential, or "" when signed out.
func (a *LocalIdentityAuthority) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// ForceRefresh re-validates the current credential and replaces it with a fresh one.
func (a *LocalIdentityAuthority) ForceRefresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.principal == nil {
		return ErrNoPrincipal
	}
	claims, err := a.parse(a.token)
	if err != nil {
		return err
	}
	if claims.Subject != a.principal.ID {
		return ErrPrincipalChanged
	}

	token, id, err := a.issue(*a.principal)
	if err != nil {
		return err
	}
	a.token, a.tokenID = token, id
	return nil
}

// Revoke invalidates the current credential and notifies listeners.
func (a *LocalIdentityAuthority) Revoke(ctx context.Context) error {
	a.mu.Lock()
	signedIn := a.principal != nil
	a.principal = nil
	a.token, a.tokenID = "", ""
	a.mu.Unlock()

	if signedIn {
		log.Info().Msg("Principal signed out")
		a.listeners.notify(nil)
	}
	return nil
}

// ParseToken validates a bearer credential. Credentials that were superseded
// by a refresh or revoked are rejected.
func (a *LocalIdentityAuthority) ParseToken(raw string) (*LocalClaims, error) {
	claims, err := a.parse(raw)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tokenID == "" || claims.ID != a.tokenID {
		return nil, errors.New("credential is no longer current")
	}
	return claims, nil
}

func (a *LocalIdentityAuthority) issue(principal models.Principal) (string, string, error) {
	now := a.clock.Now()
	id := uuid.NewString()
	claims := LocalClaims{
		Email: principal.Email,
		Name:  principal.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   principal.ID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	// Sign the token with the secret
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, id, nil
}

func (a *LocalIdentityAuthority) parse(raw string) (*LocalClaims, error) {
	if raw == "" {
		return nil, ErrNoPrincipal
	}
	claims := &LocalClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		// Check the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
