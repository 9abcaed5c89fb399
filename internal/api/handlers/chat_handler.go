package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/assistant"
	"github.com/deepscan/backend/pkg/logger"
)

type ChatHandler struct {
	assistant *assistant.Assistant
}

func NewChatHandler(a *assistant.Assistant) *ChatHandler {
	return &ChatHandler{assistant: a}
}

// HandleAsk answers one help question about deepfakes and scan results.
func (h *ChatHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Question == "" {
		return badRequest(c, "question is required")
	}

	answer, err := h.assistant.Ask(c.Context(), req.Question)
	if err != nil {
		logger.Error("Assistant failed", zap.Error(err))
		return internalError(c, "Failed to answer question")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"answer": answer,
		},
	})
}
