package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/civicportal/session-core/internal/models"
)

const (
	testClientID = "portal-client"
	testSubject  = "oidc-subject-1"
)

// fakeProvider is a minimal token and revocation endpoint.
type fakeProvider struct {
	t       *testing.T
	server  *httptest.Server
	key     *rsa.PrivateKey
	issuer  string
	mu      sync.Mutex
	subject string
	reject  bool
	revoked []url.Values
	grants  []url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{t: t, key: key, subject: testSubject}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/revoke", p.handleRevoke)
	p.server = httptest.NewServer(mux)
	p.issuer = p.server.URL
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) idToken(subject string, key *rsa.PrivateKey) string {
	p.t.Helper()
	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   p.issuer,
		"aud":   testClientID,
		"sub":   subject,
		"email": "resident@example.org",
		"name":  "Resident One",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(key)
	assert.NoError(p.t, err)
	return raw
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.grants = append(p.grants, r.PostForm)
	reject, subject := p.reject, p.subject
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if reject {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
		return
	}
	fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","refresh_token":"refresh-token","expires_in":3600,"id_token":%q}`,
		time.Now().UnixNano(), p.idToken(subject, p.key))
}

func (p *fakeProvider) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, r.PostForm)
	if r.PostForm.Get("token") == "fail" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (p *fakeProvider) setReject(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reject = reject
}

func (p *fakeProvider) setSubject(subject string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = subject
}

func (p *fakeProvider) grantForms() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.grants...)
}

func (p *fakeProvider) revokedForms() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.revoked...)
}

func (p *fakeProvider) authority() *OAuthIdentityAuthority {
	oauthConfig := &oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/oauth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.server.URL + "/authorize",
			TokenURL:  p.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess},
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}}
	verifier := oidc.NewVerifier(p.issuer, keySet, &oidc.Config{ClientID: testClientID})
	return NewOAuthIdentityAuthority(oauthConfig, verifier, p.server.URL+"/revoke")
}

func (p *fakeProvider) tokenFor(subject string) *oauth2.Token {
	return (&oauth2.Token{AccessToken: "access", RefreshToken: "refresh-token", TokenType: "Bearer"}).
		WithExtra(map[string]any{"id_token": p.idToken(subject, p.key)})
}

func TestOAuthIdentityAuthority_AuthCodeURL(t *testing.T) {
	provider := newFakeProvider(t)
	authority := provider.authority()

	authURL := authority.AuthCodeURL("state-123")
	assert.Contains(t, authURL, provider.server.URL+"/authorize")
	assert.Contains(t, authURL, "client_id="+testClientID)
	assert.Contains(t, authURL, "state=state-123")
	assert.Contains(t, authURL, "access_type=offline")
	assert.Contains(t, authURL, "response_type=code")
}

func TestOAuthIdentityAuthority_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("ExchangeThenSignIn", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		var reported []*models.Principal
		authority.OnPrincipalChanged(func(p *models.Principal) { reported = append(reported, p) })

		token, err := authority.Exchange(ctx, "auth-code")
		require.NoError(t, err)
		grants := provider.grantForms()
		require.Len(t, grants, 1)
		assert.Equal(t, "authorization_code", grants[0].Get("grant_type"))
		assert.Equal(t, "auth-code", grants[0].Get("code"))

		principal, err := authority.SignIn(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, testSubject, principal.ID)
		assert.Equal(t, "resident@example.org", principal.Email)
		assert.Equal(t, "Resident One", principal.DisplayName)
		assert.Equal(t, "oidc", principal.Provider)

		require.Len(t, reported, 1)
		assert.Equal(t, principal, reported[0])
		assert.Equal(t, principal, authority.CurrentPrincipal())
	})

	t.Run("ForeignSignatureRejected", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		token := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{"id_token": provider.idToken(testSubject, otherKey)})
		_, err = authority.SignIn(ctx, token)
		assert.ErrorContains(t, err, "failed to verify ID token")
		assert.Nil(t, authority.CurrentPrincipal())
	})

	t.Run("MissingIDToken", func(t *testing.T) {
		provider := newFakeProvider(t)
		_, err := provider.authority().SignIn(ctx, &oauth2.Token{AccessToken: "a"})
		assert.ErrorContains(t, err, "id_token missing")
	})
}

func TestOAuthIdentityAuthority_ForceRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		_, err := authority.SignIn(ctx, provider.tokenFor(testSubject))
		require.NoError(t, err)

		require.NoError(t, authority.ForceRefresh(ctx))
		grants := provider.grantForms()
		require.Len(t, grants, 1)
		assert.Equal(t, "refresh_token", grants[0].Get("grant_type"))
		assert.Equal(t, "refresh-token", grants[0].Get("refresh_token"))
	})

	t.Run("GrantRejected", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		_, err := authority.SignIn(ctx, provider.tokenFor(testSubject))
		require.NoError(t, err)

		provider.setReject(true)
		assert.ErrorContains(t, authority.ForceRefresh(ctx), "failed to refresh token")
	})

	t.Run("SubjectChanged", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		_, err := authority.SignIn(ctx, provider.tokenFor(testSubject))
		require.NoError(t, err)

		provider.setSubject("someone-else")
		assert.ErrorIs(t, authority.ForceRefresh(ctx), ErrPrincipalChanged)
	})

	t.Run("NoPrincipal", func(t *testing.T) {
		provider := newFakeProvider(t)
		assert.ErrorIs(t, provider.authority().ForceRefresh(ctx), ErrNoPrincipal)
	})

	t.Run("NoRefreshToken", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		token := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{"id_token": provider.idToken(testSubject, provider.key)})
		_, err := authority.SignIn(ctx, token)
		require.NoError(t, err)

		assert.ErrorIs(t, authority.ForceRefresh(ctx), ErrNoRefreshToken)
	})
}

func TestOAuthIdentityAuthority_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("NotifiesAndRevokesAtProvider", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		_, err := authority.SignIn(ctx, provider.tokenFor(testSubject))
		require.NoError(t, err)

		var reported []*models.Principal
		authority.OnPrincipalChanged(func(p *models.Principal) { reported = append(reported, p) })

		require.NoError(t, authority.Revoke(ctx))
		assert.Nil(t, authority.CurrentPrincipal())
		require.Len(t, reported, 1)
		assert.Nil(t, reported[0])

		revoked := provider.revokedForms()
		require.Len(t, revoked, 1)
		assert.Equal(t, "refresh-token", revoked[0].Get("token"))
		assert.Equal(t, "refresh_token", revoked[0].Get("token_type_hint"))
		assert.Equal(t, testClientID, revoked[0].Get("client_id"))
	})

	t.Run("ProviderErrorStillSignsOut", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		token := (&oauth2.Token{AccessToken: "fail"}).WithExtra(map[string]any{"id_token": provider.idToken(testSubject, provider.key)})
		_, err := authority.SignIn(ctx, token)
		require.NoError(t, err)

		err = authority.Revoke(ctx)
		require.Error(t, err)
		assert.Nil(t, authority.CurrentPrincipal())
	})

	t.Run("SignedOutIsNoop", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		notified := false
		authority.OnPrincipalChanged(func(*models.Principal) { notified = true })

		require.NoError(t, authority.Revoke(ctx))
		assert.False(t, notified)
		assert.Empty(t, provider.revokedForms())
	})

	t.Run("UnsubscribedListenerNotCalled", func(t *testing.T) {
		provider := newFakeProvider(t)
		authority := provider.authority()
		notified := false
		unsubscribe := authority.OnPrincipalChanged(func(*models.Principal) { notified = true })
		unsubscribe()

		_, err := authority.SignIn(ctx, provider.tokenFor(testSubject))
		require.NoError(t, err)
		assert.False(t, notified)
	})
}
