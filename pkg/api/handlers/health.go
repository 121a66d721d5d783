package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mediastudio/studio-billing/pkg/cache"
	"github.com/mediastudio/studio-billing/pkg/database"
	"github.com/mediastudio/studio-billing/pkg/metrics"
)

// HealthHandler reports whether the service's dependencies are reachable.
type HealthHandler struct {
	db      *database.Client
	cache   *cache.Client // nil when Redis is not configured
	metrics *metrics.Metrics
}

// NewHealthHandler creates a health handler. c may be nil.
func NewHealthHandler(db *database.Client, c *cache.Client, m *metrics.Metrics) *HealthHandler {
	return &HealthHandler{db: db, cache: c, metrics: m}
}

// Health checks the database and, when configured, Redis.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":   "healthy",
		"database": "up",
		"cache":    "disabled",
	}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "down"
	}
	if h.metrics != nil {
		h.metrics.UpdateDBConnections(float64(h.db.Stats().InUse))
	}

	if h.cache != nil {
		body["cache"] = "up"
		if err := h.cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["cache"] = "down"
		}
	}

	return c.JSON(status, body)
}
