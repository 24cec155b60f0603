package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/session-core/internal/handlers"
	"github.com/civicportal/session-core/internal/middleware"
	"github.com/civicportal/session-core/internal/mocks"
	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/router"
	"github.com/civicportal/session-core/internal/server"
	"github.com/civicportal/session-core/internal/service"
)

func setupLocalAuthTestApp(t *testing.T) (*echo.Echo, *service.LocalIdentityAuthority, *mocks.MockSessionLifecycle) {
	t.Helper()
	authority := service.NewLocalIdentityAuthority("handler-test-secret", time.Hour, clockwork.NewRealClock())
	lifecycle := new(mocks.MockSessionLifecycle)

	app := server.New()
	router.SetupLocalAuthRoutes(app, handlers.NewLocalAuthHandler(authority))
	router.SetupSessionRoutes(app, handlers.NewSessionHandler(lifecycle, service.NewActivityBus()), middleware.LocalJWT(authority))
	return app, authority, lifecycle
}

func TestLocalAuthHandler_Login(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		app, authority, _ := setupLocalAuthTestApp(t)

		rec := performRequest(app, http.MethodPost, "/api/auth/local/login",
			strings.NewReader(`{"principalId":"citizen-9","email":"c9@example.org","displayName":"C Nine"}`))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp models.LocalLoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, authority.Token(), resp.Token)
		require.NotNil(t, resp.Principal)
		assert.Equal(t, "citizen-9", resp.Principal.ID)
		assert.Equal(t, "local", resp.Principal.Provider)
	})

	t.Run("MissingPrincipalID", func(t *testing.T) {
		app, authority, _ := setupLocalAuthTestApp(t)

		rec := performRequest(app, http.MethodPost, "/api/auth/local/login", strings.NewReader(`{"email":"x@example.org"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, authority.CurrentPrincipal())
	})
}

func TestLocalJWT_GuardsSessionRoutes(t *testing.T) {
	snapshot := models.SessionSnapshot{State: models.StateActive}

	t.Run("MissingCredential", func(t *testing.T) {
		app, _, _ := setupLocalAuthTestApp(t)
		rec := performRequest(app, http.MethodGet, "/api/session", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("CurrentCredential", func(t *testing.T) {
		app, authority, lifecycle := setupLocalAuthTestApp(t)
		token, err := authority.SignIn(context.Background(), models.Principal{ID: "citizen-9"})
		require.NoError(t, err)
		lifecycle.On("Snapshot").Return(snapshot).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		lifecycle.AssertExpectations(t)
	})

	t.Run("QueryCredential", func(t *testing.T) {
		app, authority, lifecycle := setupLocalAuthTestApp(t)
		token, err := authority.SignIn(context.Background(), models.Principal{ID: "citizen-9"})
		require.NoError(t, err)
		lifecycle.On("Snapshot").Return(snapshot).Once()

		rec := performRequest(app, http.MethodGet, "/api/session?access_token="+token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("RevokedCredential", func(t *testing.T) {
		app, authority, _ := setupLocalAuthTestApp(t)
		token, err := authority.SignIn(context.Background(), models.Principal{ID: "citizen-9"})
		require.NoError(t, err)
		require.NoError(t, authority.Revoke(context.Background()))

		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
