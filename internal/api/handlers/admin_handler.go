package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/stats"
	"github.com/deepscan/backend/internal/storage/sqlite"
	"github.com/deepscan/backend/pkg/logger"
)

type AdminHandler struct {
	store *sqlite.Client
	stats *stats.Service
}

func NewAdminHandler(store *sqlite.Client, statsService *stats.Service) *AdminHandler {
	return &AdminHandler{
		store: store,
		stats: statsService,
	}
}

// GetStats returns the operator dashboard headline numbers.
func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	adminStats, err := h.stats.AdminStats(c.Context())
	if err != nil {
		logger.Error("Failed to compute admin stats", zap.Error(err))
		return internalError(c, "Failed to compute stats")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    adminStats,
	})
}

// GetRiskTrend returns the per-day risk tier counts for the trailing
// window. The days parameter is clamped, never rejected.
func (h *AdminHandler) GetRiskTrend(c *fiber.Ctx) error {
	days := c.QueryInt("days", 0)

	points, err := h.stats.RiskTrend(c.Context(), days)
	if err != nil {
		logger.Error("Failed to compute risk trend", zap.Error(err))
		return internalError(c, "Failed to compute risk trend")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"days":   len(points),
			"series": points,
		},
	})
}

// GetDistribution returns the media-type by risk-tier matrix.
func (h *AdminHandler) GetDistribution(c *fiber.Ctx) error {
	dist, err := h.stats.Distribution(c.Context())
	if err != nil {
		logger.Error("Failed to compute distribution", zap.Error(err))
		return internalError(c, "Failed to compute distribution")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    dist,
	})
}

// ListUsers pages through accounts with optional search and role filters.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	filter := sqlite.UserFilter{
		Search:       c.Query("search"),
		Role:         c.Query("role"),
		AuthProvider: c.Query("provider"),
		Page:         c.QueryInt("page", 1),
		Limit:        c.QueryInt("limit", 20),
	}

	users, total, err := h.store.ListUsers(c.Context(), filter)
	if err != nil {
		logger.Error("Failed to list users", zap.Error(err))
		return internalError(c, "Failed to list users")
	}

	// Never ship credential material, even to admins.
	type adminUser struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		Role         string `json:"role"`
		AuthProvider string `json:"authProvider"`
		CreatedAt    string `json:"createdAt"`
	}
	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		out = append(out, adminUser{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			Role:         u.Role,
			AuthProvider: u.AuthProvider,
			CreatedAt:    u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"users": out,
			"total": total,
			"page":  filter.Page,
			"limit": filter.Limit,
		},
	})
}

// ListScans pages through all scans with their owner attached.
func (h *AdminHandler) ListScans(c *fiber.Ctx) error {
	filter := sqlite.ScanFilter{
		Search:    c.Query("search"),
		RiskLevel: c.Query("risk"),
		MediaType: c.Query("mediaType"),
		Page:      c.QueryInt("page", 1),
		Limit:     c.QueryInt("limit", 20),
	}

	scans, total, err := h.store.ListScans(c.Context(), filter)
	if err != nil {
		logger.Error("Failed to list scans", zap.Error(err))
		return internalError(c, "Failed to list scans")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scans": scans,
			"total": total,
			"page":  filter.Page,
			"limit": filter.Limit,
		},
	})
}
