package handlers

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/auth"
	"github.com/deepscan/backend/internal/inference"
	"github.com/deepscan/backend/internal/resolver"
	"github.com/deepscan/backend/internal/scan"
	"github.com/deepscan/backend/internal/stats"
	"github.com/deepscan/backend/pkg/circuitbreaker"
	"github.com/deepscan/backend/pkg/logger"
)

// Stable error codes clients can branch on.
const (
	codeAiUnavailable     = "AiUnavailable"
	codeInvalidAiResponse = "InvalidAiResponse"
)

type ScanHandler struct {
	scans *scan.Service
	stats *stats.Service
}

func NewScanHandler(scans *scan.Service, statsService *stats.Service) *ScanHandler {
	return &ScanHandler{
		scans: scans,
		stats: statsService,
	}
}

// HandleScanURL runs the pipeline for a single submitted URL.
func (h *ScanHandler) HandleScanURL(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url is required",
		})
	}

	result, err := h.scans.ScanURL(c.Context(), auth.UserID(c), req.URL)
	if err != nil {
		return scanError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// HandleScanFile accepts a multipart upload and runs the pipeline on the
// raw bytes.
func (h *ScanHandler) HandleScanFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "failed to read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "failed to read uploaded file",
		})
	}

	result, err := h.scans.ScanFile(c.Context(), auth.UserID(c), data,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return scanError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// HandleBulkScan fans out over up to five URLs and reports per-item
// outcomes plus an overall verdict.
func (h *ScanHandler) HandleBulkScan(c *fiber.Ctx) error {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if len(req.URLs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "urls is required and must be a non-empty array",
		})
	}

	summary := h.scans.BulkScan(c.Context(), auth.UserID(c), req.URLs, nil)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// GetHistory lists the caller's scan records, newest first.
func (h *ScanHandler) GetHistory(c *fiber.Ctx) error {
	page, limit := pageParams(c)

	records, total, err := h.scans.History(c.Context(), auth.UserID(c), page, limit)
	if err != nil {
		logger.Error("Failed to load scan history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load scan history",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scans": records,
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// GetSummary returns the caller's dashboard aggregate.
func (h *ScanHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.stats.UserSummary(c.Context(), auth.UserID(c))
	if err != nil {
		logger.Error("Failed to compute scan summary", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to compute scan summary",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// CreateProof records an evidence fingerprint for a completed scan or batch.
func (h *ScanHandler) CreateProof(c *fiber.Ctx) error {
	var req struct {
		ScanID     string          `json:"scanId"`
		ReportType string          `json:"reportType"`
		Summary    json.RawMessage `json:"summary"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.ReportType == "" {
		req.ReportType = "scan"
	}

	proof, err := h.scans.CreateProof(c.Context(), auth.UserID(c), req.ScanID, req.ReportType, req.Summary)
	if err != nil {
		logger.Error("Failed to create report proof", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create report proof",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    proof,
	})
}

func (h *ScanHandler) ListProofs(c *fiber.Ctx) error {
	page, limit := pageParams(c)

	proofs, total, err := h.scans.ListProofs(c.Context(), auth.UserID(c), page, limit)
	if err != nil {
		logger.Error("Failed to list report proofs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list report proofs",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"proofs": proofs,
			"total":  total,
			"page":   page,
			"limit":  limit,
		},
	})
}

// pageParams reads page/limit query params, clamping instead of rejecting
// out-of-range values.
func pageParams(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// scanError maps pipeline failures to HTTP responses. Client mistakes get
// 400 with the reason; upstream trouble keeps its stable code so the
// frontend can distinguish "try later" from "report this".
func scanError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, resolver.ErrInvalidURL):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   resolver.ErrInvalidURL.Error(),
		})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "AI service is temporarily unavailable",
			"code":    codeAiUnavailable,
		})
	case errors.Is(err, inference.ErrUnavailable):
		logger.Error("Inference unavailable", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
			"code":    codeAiUnavailable,
		})
	case errors.Is(err, inference.ErrInvalidResponse):
		logger.Error("Inference response invalid", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   inference.ErrInvalidResponse.Error(),
			"code":    codeInvalidAiResponse,
		})
	default:
		logger.Error("Scan failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Scan failed",
		})
	}
}
