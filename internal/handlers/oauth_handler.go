package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/service"
)

const stateCookieTTL = 10 * time.Minute

// OAuthHandler handles the OpenID Connect login flow
type OAuthHandler struct {
	Authority       service.OAuthAuthority
	StateCookieName string
}

// NewOAuthHandler creates a new instance of OAuthHandler
func NewOAuthHandler(authority service.OAuthAuthority, stateCookieName string) *OAuthHandler {
	return &OAuthHandler{
		Authority:       authority,
		StateCookieName: stateCookieName,
	}
}

func (h *OAuthHandler) stateCookie(c echo.Context, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.StateCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	}
}

// Login initiates the OAuth2 flow by redirecting the user to the provider
func (h *OAuthHandler) Login(c echo.Context) error {
	state := uuid.NewString()
	c.SetCookie(h.stateCookie(c, state, time.Now().Add(stateCookieTTL)))

	authURL := h.Authority.AuthCodeURL(state)
	log.Debug().Str("authURL", authURL).Msg("Redirecting user to identity provider")
	return c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback handles the redirect back from the provider after authentication
func (h *OAuthHandler) Callback(c echo.Context) error {
	queryState := c.QueryParam("state")
	var cookieState string
	if cookie, err := c.Cookie(h.StateCookieName); err == nil {
		cookieState = cookie.Value
	}

	// Clear the state cookie immediately after reading
	c.SetCookie(h.stateCookie(c, "", time.Now().Add(-time.Hour)))

	if queryState == "" {
		log.Warn().Msg("Callback error: state parameter missing in callback URL")
		return echo.NewHTTPError(http.StatusBadRequest, "State parameter missing")
	}
	if cookieState == "" {
		log.Warn().Msg("Callback error: state cookie missing")
		return echo.NewHTTPError(http.StatusBadRequest, "State cookie missing or expired")
	}
	if queryState != cookieState {
		log.Warn().Msg("Callback error: state mismatch")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid state parameter")
	}

	code := c.QueryParam("code")
	if code == "" {
		errorDesc := c.QueryParam("error_description")
		log.Warn().Str("error", c.QueryParam("error")).Str("description", errorDesc).Msg("Callback error: authorization code missing")
		return echo.NewHTTPError(http.StatusBadRequest, "Authorization code missing or error occurred during login: "+errorDesc)
	}

	ctx := c.Request().Context()
	token, err := h.Authority.Exchange(ctx, code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to exchange authorization code for token")
	}

	principal, err := h.Authority.SignIn(ctx, token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Failed to verify identity")
	}
	log.Info().Str("subject", principal.ID).Msg("Successfully signed in")

	return c.JSON(http.StatusOK, map[string]any{
		"message":   "Login successful!",
		"principal": principal,
	})
}
