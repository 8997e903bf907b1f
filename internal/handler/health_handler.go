package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/backend"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the terminal service can reach the loyalty platform.
type HealthHandler struct {
	backend Pinger
}

// NewHealthHandler creates a new HealthHandler with the given platform client.
func NewHealthHandler(backend Pinger) *HealthHandler {
	return &HealthHandler{backend: backend}
}

// Check pings the loyalty platform. A platform that answers with a 5xx
// status is reported with that status; a transport failure as unreachable.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	err := h.backend.Ping(c.UserContext())
	if err == nil {
		return c.JSON(fiber.Map{"status": "healthy"})
	}

	body := fiber.Map{
		"status": "unhealthy",
		"error":  "loyalty platform unreachable",
	}
	event := log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID))

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		body["error"] = "loyalty platform unavailable"
		body["backend_status"] = apiErr.StatusCode
		event = event.Int("backend_status", apiErr.StatusCode)
	}
	event.Msg("health check failed")

	return c.Status(fiber.StatusServiceUnavailable).JSON(body)
}
