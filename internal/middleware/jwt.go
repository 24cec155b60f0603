package middleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/service"
)

// ClaimsContextKey is where the validated credential claims are stored on the echo context.
const ClaimsContextKey = "principalClaims"

// TokenParser validates a raw bearer credential.
type TokenParser interface {
	ParseToken(raw string) (*service.LocalClaims, error)
}

// LocalJWT rejects requests without a current local credential. The token is
// read from the Authorization header, or from the access_token query
// parameter for EventSource clients that cannot set headers.
func LocalJWT(parser TokenParser) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  ClaimsContextKey,
		TokenLookup: "header:Authorization:Bearer ,query:access_token",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return parser.ParseToken(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected credential")
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired credential")
		},
	})
}

// Claims returns the claims stored by LocalJWT, or nil.
func Claims(c echo.Context) *service.LocalClaims {
	claims, _ := c.Get(ClaimsContextKey).(*service.LocalClaims)
	return claims
}
