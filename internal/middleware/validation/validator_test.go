package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{}))
	app.Post("/api/v1/scan", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/api/v1/scan/bulk", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) int {
	t.Helper()

	req := httptest.NewRequest("POST", path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestMiddleware_ScanURL(t *testing.T) {
	app := newApp()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"url":"https://example.com/a.png"}`, wantStatus: fiber.StatusOK},
		{name: "missing url", body: `{}`, wantStatus: fiber.StatusBadRequest},
		{name: "non-http scheme", body: `{"url":"ftp://example.com/a"}`, wantStatus: fiber.StatusBadRequest},
		{name: "script injection", body: `{"url":"javascript:alert(1)"}`, wantStatus: fiber.StatusBadRequest},
		{name: "bad json", body: `{`, wantStatus: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := post(t, app, "/api/v1/scan", "application/json", tt.body)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestMiddleware_BulkScan(t *testing.T) {
	app := newApp()

	status := post(t, app, "/api/v1/scan/bulk", "application/json",
		`{"urls":["https://a.example/1","https://a.example/2"]}`)
	assert.Equal(t, fiber.StatusOK, status)

	status = post(t, app, "/api/v1/scan/bulk", "application/json", `{"urls":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = post(t, app, "/api/v1/scan/bulk", "application/json", `{"urls":["https://a.example/1",42]}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMiddleware_BulkScanOversizedListPasses(t *testing.T) {
	app := newApp()

	// Oversized batches are the pipeline's problem (it truncates them);
	// validation must not reject on count.
	urls := make([]string, 60)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://a.example/%d", i)
	}
	body, err := json.Marshal(map[string]any{"urls": urls})
	require.NoError(t, err)

	status := post(t, app, "/api/v1/scan/bulk", "application/json", string(body))
	assert.Equal(t, fiber.StatusOK, status)
}

func TestMiddleware_ContentType(t *testing.T) {
	app := newApp()

	status := post(t, app, "/api/v1/scan", "text/xml", `<scan/>`)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, status)
}
