package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/service"
)

// LocalAuthHandler signs principals in with the development authority
type LocalAuthHandler struct {
	Authority service.LocalAuthority
}

func NewLocalAuthHandler(authority service.LocalAuthority) *LocalAuthHandler {
	return &LocalAuthHandler{Authority: authority}
}

// Login issues a bearer credential for the requested principal
func (h *LocalAuthHandler) Login(c echo.Context) error {
	var req models.LocalLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.PrincipalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "principalId is required")
	}

	principal := models.Principal{
		ID:          req.PrincipalID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	token, err := h.Authority.SignIn(c.Request().Context(), principal)
	if err != nil {
		log.Error().Err(err).Str("principal", req.PrincipalID).Msg("Local sign-in failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to sign in")
	}

	return c.JSON(http.StatusCreated, models.LocalLoginResponse{
		Token:     token,
		Principal: h.Authority.CurrentPrincipal(),
	})
}
