package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/auth"
	"github.com/deepscan/backend/internal/scan"
	"github.com/deepscan/backend/pkg/logger"
)

// WebSocketHandler streams bulk-scan progress: one message per settled URL,
// then the batch summary. Results over the socket carry the same shapes as
// the REST bulk endpoint.
type WebSocketHandler struct {
	scans *scan.Service
	jwt   *auth.JWTManager
}

func NewWebSocketHandler(scans *scan.Service, jwt *auth.JWTManager) *WebSocketHandler {
	return &WebSocketHandler{
		scans: scans,
		jwt:   jwt,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type  string   `json:"type"`
			Token string   `json:"token"`
			URLs  []string `json:"urls"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "bulk_scan" {
			h.sendError(c, "unknown message type")
			continue
		}

		claims, err := h.jwt.ValidateToken(msg.Token)
		if err != nil {
			h.sendError(c, "authentication required")
			continue
		}

		if len(msg.URLs) == 0 {
			h.sendError(c, "urls is required")
			continue
		}

		h.streamBulkScan(c, claims.UserID, msg.URLs)
	}
}

func (h *WebSocketHandler) streamBulkScan(c *websocket.Conn, userID string, urls []string) {
	scanned := len(urls)
	if scanned > scan.MaxBulkItems {
		scanned = scan.MaxBulkItems
	}

	c.WriteJSON(map[string]interface{}{
		"type":  "started",
		"total": scanned,
	})

	settled := 0
	summary := h.scans.BulkScan(context.Background(), userID, urls, func(item scan.BulkItem) {
		settled++
		c.WriteJSON(map[string]interface{}{
			"type":    "item",
			"settled": settled,
			"total":   scanned,
			"result":  item,
		})
	})

	c.WriteJSON(map[string]interface{}{
		"type":    "complete",
		"summary": summary,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
