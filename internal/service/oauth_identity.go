package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/civicportal/session-core/internal/config"
	"github.com/civicportal/session-core/internal/models"
)

const authorityTimeout = 30 * time.Second

// OAuthIdentityAuthority is an IdentityAuthority backed by an OpenID Connect provider.
type OAuthIdentityAuthority struct {
	oauthConfig   *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	listeners     principalListeners

	mu        sync.Mutex
	principal *models.Principal
	token     *oauth2.Token
}

var _ OAuthAuthority = (*OAuthIdentityAuthority)(nil)

// NewOAuthIdentityAuthority creates an authority from an already configured
// client and ID token verifier. revocationURL may be empty.
func NewOAuthIdentityAuthority(oauthConfig *oauth2.Config, verifier *oidc.IDTokenVerifier, revocationURL string) *OAuthIdentityAuthority {
	return &OAuthIdentityAuthority{
		oauthConfig:   oauthConfig,
		verifier:      verifier,
		revocationURL: revocationURL,
		httpClient:    &http.Client{Timeout: authorityTimeout},
	}
}

// NewOAuthIdentityAuthorityFromConfig discovers the provider and builds the authority.
func NewOAuthIdentityAuthorityFromConfig(ctx context.Context, cfg config.OIDCConfig) (*OAuthIdentityAuthority, error) {
	ctx, cancel := context.WithTimeout(ctx, authorityTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		log.Error().Err(err).Str("issuer", cfg.Issuer).Msg("Failed to create OIDC provider")
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	revocationURL := cfg.RevocationURL
	if revocationURL == "" {
		var claims struct {
			RevocationEndpoint string `json:"revocation_endpoint"`
		}
		if err := provider.Claims(&claims); err == nil {
			revocationURL = claims.RevocationEndpoint
		}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewOAuthIdentityAuthority(oauthConfig, verifier, revocationURL), nil
}

// AuthCodeURL generates the URL for the provider's login page
func (a *OAuthIdentityAuthority) AuthCodeURL(state string) string {
	return a.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange exchanges the authorization code for an OAuth2 token
func (a *OAuthIdentityAuthority) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("Error exchanging OAuth code for token")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if !token.Valid() {
		log.Warn().Msg("Received invalid OAuth token after exchange")
		return nil, errors.New("received invalid token")
	}
	return token, nil
}

// SignIn verifies the token's ID token and makes its subject the current principal.
func (a *OAuthIdentityAuthority) SignIn(ctx context.Context, token *oauth2.Token) (*models.Principal, error) {
	principal, err := a.verify(ctx, token)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.principal = principal
	a.token = token
	a.mu.Unlock()

	log.Info().Str("subject", principal.ID).Msg("Principal signed in")
	a.listeners.notify(principal)
	return principal, nil
}

func (a *OAuthIdentityAuthority) OnPrincipalChanged(fn func(*models.Principal)) func() {
	return a.listeners.add(fn)
}

func (a *OAuthIdentityAuthority) CurrentPrincipal() *models.Principal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.principal == nil {
		return nil
	}
	p := *a.principal
	return &p
}

// ForceRefresh redeems the refresh token at the provider. A rejected grant or
// an ID token for another subject means the credential is no longer valid.
func (a *OAuthIdentityAuthority) ForceRefresh(ctx context.Context) error {
	a.mu.Lock()
	principal, token := a.principal, a.token
	a.mu.Unlock()

	if principal == nil || token == nil {
		return ErrNoPrincipal
	}
	if token.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, authorityTimeout)
	defer cancel()

	refreshed, err := a.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	if _, ok := refreshed.Extra("id_token").(string); ok {
		refreshedPrincipal, err := a.verify(ctx, refreshed)
		if err != nil {
			return err
		}
		if refreshedPrincipal.ID != principal.ID {
			return ErrPrincipalChanged
		}
	}

	a.mu.Lock()
	if a.principal != nil && a.principal.ID == principal.ID {
		a.token = refreshed
	}
	a.mu.Unlock()
	return nil
}

// Revoke signs the principal out locally, notifies listeners and then asks
// the provider to revoke the refresh token (RFC 7009).
func (a *OAuthIdentityAuthority) Revoke(ctx context.Context) error {
	a.mu.Lock()
	principal, token := a.principal, a.token
	a.principal, a.token = nil, nil
	a.mu.Unlock()

	if principal != nil {
		log.Info().Str("subject", principal.ID).Msg("Principal signed out")
		a.listeners.notify(nil)
	}
	if token == nil || a.revocationURL == "" {
		return nil
	}
	return a.revokeAtProvider(ctx, token)
}

func (a *OAuthIdentityAuthority) revokeAtProvider(ctx context.Context, token *oauth2.Token) error {
	form := url.Values{}
	if token.RefreshToken != "" {
		form.Set("token", token.RefreshToken)
		form.Set("token_type_hint", "refresh_token")
	} else {
		form.Set("token", token.AccessToken)
		form.Set("token_type_hint", "access_token")
	}
	form.Set("client_id", a.oauthConfig.ClientID)
	if a.oauthConfig.ClientSecret != "" {
		form.Set("client_secret", a.oauthConfig.ClientSecret)
	}

	ctx, cancel := context.WithTimeout(ctx, authorityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn().Int("statusCode", resp.StatusCode).Str("body", string(body)).Msg("Error response from revocation endpoint")
		return fmt.Errorf("revocation request failed with status: %s", resp.Status)
	}
	return nil
}

func (a *OAuthIdentityAuthority) verify(ctx context.Context, token *oauth2.Token) (*models.Principal, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		log.Warn().Msg("ID token missing from OAuth token response")
		return nil, errors.New("id_token missing from response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to verify ID token")
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode ID token claims: %w", err)
	}

	return &models.Principal{
		ID:          idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Provider:    config.IdentityProviderOIDC,
	}, nil
}
