package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxURLLength        int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware validates scan request bodies before they reach the handlers:
// content type, URL shape, and bulk list size. Deeper URL checks (media
// resolution) happen in the pipeline itself.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = 2048
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"success": false,
						"error":   "Unsupported content type",
					})
				}
			}
		}

		path := strings.TrimSuffix(c.Path(), "/")

		if c.Method() == "POST" && strings.HasSuffix(path, "/scan") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid JSON format",
				})
			}

			urlStr, ok := req["url"].(string)
			if !ok || urlStr == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "url is required and must be a string",
				})
			}

			if reason := checkScanURL(urlStr, cfg, c, "url"); reason != "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   reason,
				})
			}
		}

		if c.Method() == "POST" && strings.HasSuffix(path, "/scan/bulk") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid JSON format",
				})
			}

			// No upper bound on the list here: the pipeline truncates
			// oversized batches itself, it never rejects them.
			rawURLs, ok := req["urls"].([]interface{})
			if !ok || len(rawURLs) == 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "urls is required and must be a non-empty array",
				})
			}

			for _, raw := range rawURLs {
				urlStr, ok := raw.(string)
				if !ok || urlStr == "" {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"success": false,
						"error":   "urls must contain only non-empty strings",
					})
				}
				if reason := checkScanURL(urlStr, cfg, c, "urls"); reason != "" {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"success": false,
						"error":   reason,
					})
				}
			}
		}

		return c.Next()
	}
}

func checkScanURL(urlStr string, cfg Config, c *fiber.Ctx, field string) string {
	if len(urlStr) > cfg.MaxURLLength {
		return "URL exceeds maximum length"
	}

	if xssPattern.MatchString(urlStr) {
		if cfg.Logger != nil {
			cfg.Logger.Warn("Potential XSS attempt in scan request",
				zap.String("ip", c.IP()),
				zap.String("field", field),
			)
		}
		return "Invalid URL content"
	}

	if !isValidURL(urlStr) {
		return "Please provide a valid http/https URL"
	}

	return ""
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
