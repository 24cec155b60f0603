package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/session-core/internal/models"
)

const testLocalSecret = "test-local-secret"

func setupLocalIdentityTest(t *testing.T) (*LocalIdentityAuthority, fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewLocalIdentityAuthority(testLocalSecret, time.Hour, clock), clock
}

func TestLocalIdentityAuthority_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		authority, clock := setupLocalIdentityTest(t)
		var reported *models.Principal
		authority.OnPrincipalChanged(func(p *models.Principal) { reported = p })

		token, err := authority.SignIn(ctx, models.Principal{ID: "citizen-1", Email: "c1@example.org", DisplayName: "C One"})
		require.NoError(t, err)
		assert.Equal(t, token, authority.Token())

		require.NotNil(t, reported)
		assert.Equal(t, "citizen-1", reported.ID)
		assert.Equal(t, "local", reported.Provider)

		claims, err := authority.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, "citizen-1", claims.Subject)
		assert.Equal(t, "c1@example.org", claims.Email)
		assert.Equal(t, localIssuer, claims.Issuer)
		assert.Equal(t, clock.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("MissingID", func(t *testing.T) {
		authority, _ := setupLocalIdentityTest(t)
		_, err := authority.SignIn(ctx, models.Principal{})
		assert.Error(t, err)
		assert.Nil(t, authority.CurrentPrincipal())
	})
}

func TestLocalIdentityAuthority_ForceRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("ReissuesCredential", func(t *testing.T) {
		authority, _ := setupLocalIdentityTest(t)
		first, err := authority.SignIn(ctx, models.Principal{ID: "citizen-1"})
		require.NoError(t, err)

		require.NoError(t, authority.ForceRefresh(ctx))
		second := authority.Token()
		assert.NotEqual(t, first, second)

		_, err = authority.ParseToken(first)
		assert.Error(t, err, "superseded credential must be rejected")
		_, err = authority.ParseToken(second)
		assert.NoError(t, err)
	})

	t.Run("ExpiredCredential", func(t *testing.T) {
		authority, clock := setupLocalIdentityTest(t)
		_, err := authority.SignIn(ctx, models.Principal{ID: "citizen-1"})
		require.NoError(t, err)

		clock.Advance(time.Hour + time.Second)
		err = authority.ForceRefresh(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("NoPrincipal", func(t *testing.T) {
		authority, _ := setupLocalIdentityTest(t)
		assert.ErrorIs(t, authority.ForceRefresh(ctx), ErrNoPrincipal)
	})
}

func TestLocalIdentityAuthority_Revoke(t *testing.T) {
	ctx := context.Background()
	authority, _ := setupLocalIdentityTest(t)
	token, err := authority.SignIn(ctx, models.Principal{ID: "citizen-1"})
	require.NoError(t, err)

	calls := 0
	var last *models.Principal
	authority.OnPrincipalChanged(func(p *models.Principal) {
		calls++
		last = p
	})

	require.NoError(t, authority.Revoke(ctx))
	assert.Equal(t, 1, calls)
	assert.Nil(t, last)
	assert.Nil(t, authority.CurrentPrincipal())
	assert.Empty(t, authority.Token())

	_, err = authority.ParseToken(token)
	assert.Error(t, err)

	// second revoke does not notify again
	require.NoError(t, authority.Revoke(ctx))
	assert.Equal(t, 1, calls)
}

func TestLocalIdentityAuthority_ParseToken(t *testing.T) {
	authority, _ := setupLocalIdentityTest(t)
	_, err := authority.SignIn(context.Background(), models.Principal{ID: "citizen-1"})
	require.NoError(t, err)

	other := NewLocalIdentityAuthority("another-secret", time.Hour, newFakeClock())
	foreign, err := other.SignIn(context.Background(), models.Principal{ID: "citizen-1"})
	require.NoError(t, err)

	_, err = authority.ParseToken(foreign)
	assert.Error(t, err)
	_, err = authority.ParseToken("not-a-jwt")
	assert.Error(t, err)
}
