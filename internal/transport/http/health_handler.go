package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler reports process liveness.
type HealthHandler struct {
	version string
	started time.Time
	// SessionCounter reports how many sessions are live.
	sessions func() int
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, sessions func() int) *HealthHandler {
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	return &HealthHandler{
		version: version,
		started: time.Now().UTC(),
		sessions: sessions,
	}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":   "healthy",
		"version":  h.version,
		"uptime":   time.Since(h.started).String(),
		"sessions": h.sessions(),
	})
}
