package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/metrics"
	"github.com/deepscan/backend/pkg/circuitbreaker"
	"github.com/deepscan/backend/pkg/logger"
)

var (
	// ErrUnavailable covers everything network-level: refused connections,
	// unresolvable hosts, and explicit server failures.
	ErrUnavailable = errors.New("AI service unavailable")
	// ErrInvalidResponse means the service answered with a shape matching
	// neither known contract. Retrying will not help; it is a contract
	// mismatch that needs operator attention.
	ErrInvalidResponse = errors.New("AI service returned an unrecognized response")
)

// contract names one versioned API surface of the inference service.
// Candidates are tried in order; a 404 means the contract is absent at that
// base URL and the next one is attempted. Adding a future contract is a new
// entry here, call sites stay untouched.
type contract struct {
	name       string
	urlPath    string
	uploadPath string
}

var contracts = []contract{
	{name: "current", urlPath: "/scan/url", uploadPath: "/scan/upload"},
	{name: "legacy", urlPath: "/analyze", uploadPath: "/analyze-file"},
}

type Config struct {
	BaseURL       string
	URLTimeout    time.Duration
	UploadTimeout time.Duration
	HealthTimeout time.Duration
}

// Client is the gateway to the external deepfake inference service.
type Client struct {
	baseURL       string
	urlTimeout    time.Duration
	uploadTimeout time.Duration
	healthTimeout time.Duration
	httpClient    *http.Client
	cb            *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.URLTimeout == 0 {
		cfg.URLTimeout = 25 * time.Second
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 45 * time.Second
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = 5 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("inference", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Inference client initialized", zap.String("base_url", cfg.BaseURL))

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		urlTimeout:    cfg.URLTimeout,
		uploadTimeout: cfg.UploadTimeout,
		healthTimeout: cfg.HealthTimeout,
		httpClient:    &http.Client{},
		cb:            cb,
	}
}

// AnalyzeURL submits a resolved media URL for classification.
func (c *Client) AnalyzeURL(ctx context.Context, mediaURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.urlTimeout)
	defer cancel()

	var result *Result
	err := c.cb.Execute(ctx, func() error {
		var err error
		result, err = c.analyzeWithFallback(ctx, mediaURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AnalyzeFile submits raw media bytes as a multipart upload. The longer
// timeout reflects upload size.
func (c *Client) AnalyzeFile(ctx context.Context, data []byte, filename, mimeType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var result *Result
	err := c.cb.Execute(ctx, func() error {
		var err error
		result, err = c.uploadWithFallback(ctx, data, filename, mimeType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) analyzeWithFallback(ctx context.Context, mediaURL string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"mediaUrl": mediaURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	for _, ct := range contracts {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ct.urlPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")

		result, notFound, err := c.do(req, ct.name)
		if notFound {
			continue
		}
		return result, err
	}

	return nil, ErrUnavailable
}

func (c *Client) uploadWithFallback(ctx context.Context, data []byte, filename, mimeType string) (*Result, error) {
	for _, ct := range contracts {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
		if mimeType != "" {
			writer.WriteField("mimeType", mimeType)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ct.uploadPath, &buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		result, notFound, err := c.do(req, ct.name)
		if notFound {
			continue
		}
		return result, err
	}

	return nil, ErrUnavailable
}

// do executes one contract attempt. notFound signals the caller to try the
// next contract; any other failure is final.
func (c *Client) do(req *http.Request, contractName string) (result *Result, notFound bool, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Inference request failed",
			zap.String("contract", contractName),
			zap.Error(err),
		)
		metrics.InferenceErrors.WithLabelValues("transport").Inc()
		return nil, false, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.Debug("Inference contract not found, falling back",
			zap.String("contract", contractName),
		)
		metrics.InferenceFallbacks.Inc()
		return nil, true, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, ErrUnavailable
	}

	if resp.StatusCode >= 400 {
		metrics.InferenceErrors.WithLabelValues("server").Inc()
		// Surface only what the service itself reported, never raw
		// transport detail.
		if msg := extractErrorMessage(body); msg != "" {
			return nil, false, fmt.Errorf("%w: %s", ErrUnavailable, msg)
		}
		return nil, false, ErrUnavailable
	}

	result, err = Normalize(body)
	if err != nil {
		logger.Error("Inference response did not match any known contract",
			zap.String("contract", contractName),
			zap.Int("status", resp.StatusCode),
		)
		metrics.InferenceErrors.WithLabelValues("contract").Inc()
		return nil, false, err
	}

	logger.Debug("Inference completed",
		zap.String("contract", contractName),
		zap.String("media_type", result.MediaType),
		zap.Float64("probability", result.Probability),
	)

	return result, false, nil
}

// Health checks the current contract's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return ErrUnavailable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ErrUnavailable
	}
	return nil
}

func extractErrorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
