package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/deepscan/backend/internal/inference"
)

type HealthHandler struct {
	inference *inference.Client
	redisPing func(ctx context.Context) error
}

func NewHealthHandler(inferenceClient *inference.Client, redisPing func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		inference: inferenceClient,
		redisPing: redisPing,
	}
}

// Handle reports liveness plus the reachability of each dependency. The
// endpoint itself always answers 200; degraded dependencies show up in the
// per-component map.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	components := fiber.Map{
		"api": "ok",
	}

	if h.inference != nil {
		if err := h.inference.Health(c.Context()); err != nil {
			components["ai"] = "unreachable"
		} else {
			components["ai"] = "ok"
		}
	}

	if h.redisPing != nil {
		if err := h.redisPing(c.Context()); err != nil {
			components["cache"] = "unreachable"
		} else {
			components["cache"] = "ok"
		}
	} else {
		components["cache"] = "disabled"
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    components,
	})
}
