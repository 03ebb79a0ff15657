package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/session"
	"github.com/nfrund/chatroom/internal/view"
)

// HomeHandler serves the chat page.
type HomeHandler struct {
	version string
}

// NewHomeHandler creates a new HomeHandler.
func NewHomeHandler(version string) *HomeHandler {
	return &HomeHandler{version: version}
}

// HomeGet renders the chat page through the universal renderer.
func (h *HomeHandler) HomeGet(c echo.Context) error {
	return c.Render(http.StatusOK, "", view.ChatPage(h.version))
}

// StatsProvider reports live room and connection counts.
type StatsProvider interface {
	Stats() session.Stats
}

// HealthHandler reports liveness along with basic counts.
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// Get handles GET /health.
func (h *HealthHandler) Get(c echo.Context) error {
	s := h.stats.Stats()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Rooms:       s.Rooms,
		Connections: s.Connections,
	})
}
