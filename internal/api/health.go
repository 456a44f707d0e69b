package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	registry *gateway.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry *gateway.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return httputil.Success(c, fiber.Map{
		"status":      "ok",
		"connections": h.registry.Count(),
	})
}
