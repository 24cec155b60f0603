package router

import (
	"github.com/labstack/echo/v4"

	"github.com/civicportal/session-core/internal/handlers"
)

// SetupSessionRoutes registers the session bridge. mw guards every route.
func SetupSessionRoutes(app *echo.Echo, sessionHandler *handlers.SessionHandler, mw ...echo.MiddlewareFunc) {
	api := app.Group("/api/session", mw...)

	api.GET("", sessionHandler.Snapshot)                 // Current state
	api.POST("/activity", sessionHandler.RecordActivity) // User interaction
	api.POST("/extend", sessionHandler.Extend)           // "Stay signed in"
	api.POST("/logout", sessionHandler.Logout)           // Explicit logout
	api.GET("/events", sessionHandler.Events)            // Server-sent events
}

func SetupOAuthRoutes(app *echo.Echo, authHandler *handlers.OAuthHandler) {
	oauth := app.Group("/api/auth/oauth")
	oauth.GET("/login", authHandler.Login)
	oauth.GET("/callback", authHandler.Callback)
}

func SetupLocalAuthRoutes(app *echo.Echo, authHandler *handlers.LocalAuthHandler) {
	local := app.Group("/api/auth/local")
	local.POST("/login", authHandler.Login)
}
