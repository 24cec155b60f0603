package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/service"
)

const (
	eventBuffer       = 16
	keepAliveInterval = 15 * time.Second
)

// SessionHandler bridges the session lifecycle to the UI layer.
type SessionHandler struct {
	Lifecycle service.SessionLifecycle
	Activity  service.ActivityPublisher
}

// NewSessionHandler creates a new instance of SessionHandler
func NewSessionHandler(lifecycle service.SessionLifecycle, activity service.ActivityPublisher) *SessionHandler {
	return &SessionHandler{
		Lifecycle: lifecycle,
		Activity:  activity,
	}
}

// Snapshot returns the current session state
func (h *SessionHandler) Snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Lifecycle.Snapshot())
}

// RecordActivity reports a user interaction
func (h *SessionHandler) RecordActivity(c echo.Context) error {
	var req models.ActivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	kind, ok := models.ParseActivityKind(req.Kind)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unknown activity kind %q", req.Kind))
	}
	h.Activity.Publish(kind)
	return c.NoContent(http.StatusNoContent)
}

// Extend keeps the session alive, dismissing a pending warning
func (h *SessionHandler) Extend(c echo.Context) error {
	h.Lifecycle.ExtendSession()
	return c.JSON(http.StatusOK, h.Lifecycle.Snapshot())
}

// Logout ends the session at the user's request
func (h *SessionHandler) Logout(c echo.Context) error {
	if err := h.Lifecycle.Logout(c.Request().Context()); err != nil {
		// the local session is gone either way
		log.Warn().Err(err).Msg("Logout completed with errors")
	}
	return c.JSON(http.StatusOK, models.LogoutResponse{Message: "Logged out"})
}

// Events streams session events as server-sent events
func (h *SessionHandler) Events(c echo.Context) error {
	events, cancel := h.Lifecycle.Subscribe(eventBuffer)
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode session event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
