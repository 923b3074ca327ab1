package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports dependency health
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler creates a health handler. cache may be nil.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "healthy"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":   "healthy",
		"database": dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	if h.cache != nil {
		// cache outages degrade lookups but do not fail the check
		if err := h.cache.Ping(ctx); err != nil {
			body["cache"] = "unhealthy"
		} else {
			body["cache"] = "healthy"
		}
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	return c.JSON(status, body)
}
