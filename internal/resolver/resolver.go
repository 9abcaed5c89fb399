package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/metrics"
	"github.com/deepscan/backend/pkg/logger"
)

const (
	defaultTimeout      = 12 * time.Second
	defaultMaxRedirects = 5
	defaultHTMLMaxChars = 1_000_000
)

type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	HTMLMaxChars int
}

// Resolver turns a user-submitted URL into the best-effort directly
// fetchable media URL. Many submitted links point at a page embedding the
// real media, not the media file itself; the inference service can only
// classify raw media bytes.
type Resolver struct {
	client       *http.Client
	htmlMaxChars int
}

func New(cfg Config) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if cfg.HTMLMaxChars == 0 {
		cfg.HTMLMaxChars = defaultHTMLMaxChars
	}

	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Resolver{
		client:       client,
		htmlMaxChars: cfg.HTMLMaxChars,
	}
}

// Resolve validates the input URL and follows the resolution chain:
// known-video-host bypass, HEAD probe, full fetch, HTML extraction. After
// validation it never fails; network trouble degrades to the last URL seen.
func (r *Resolver) Resolve(ctx context.Context, inputURL string) (string, error) {
	if !IsHTTPURL(inputURL) {
		return "", ErrInvalidURL
	}

	// The inference service extracts these hosts itself (yt-dlp), so
	// scraping here would only lose information.
	if IsKnownVideoHost(inputURL) {
		metrics.ResolverExtractions.WithLabelValues("video_host").Inc()
		return inputURL, nil
	}

	finalURL, contentType, ok := r.probe(ctx, inputURL)
	if ok && isMediaContentType(contentType) {
		metrics.ResolverExtractions.WithLabelValues("direct_media").Inc()
		return finalURL, nil
	}
	if !ok {
		finalURL = inputURL
	}

	resolved := r.fetch(ctx, finalURL)
	if resolved != inputURL {
		metrics.ResolverExtractions.WithLabelValues("extracted").Inc()
	} else {
		metrics.ResolverExtractions.WithLabelValues("unchanged").Inc()
	}
	return resolved, nil
}

// probe issues a header-only request. A failed probe is treated as absent,
// never as an error.
func (r *Resolver) probe(ctx context.Context, target string) (finalURL, contentType string, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", "", false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Debug("HEAD probe failed", zap.String("url", target), zap.Error(err))
		return "", "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", "", false
	}

	return resp.Request.URL.String(), normalizeContentType(resp.Header.Get("Content-Type")), true
}

// fetch performs the full GET. Direct media returns its post-redirect URL,
// an HTML page is scanned for an embedded media reference, and anything
// else (including network failure) returns the URL unchanged.
func (r *Resolver) fetch(ctx context.Context, target string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return target
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Debug("Full fetch failed", zap.String("url", target), zap.Error(err))
		return target
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return target
	}

	finalURL := resp.Request.URL.String()
	contentType := normalizeContentType(resp.Header.Get("Content-Type"))

	if isMediaContentType(contentType) {
		return finalURL
	}

	if strings.Contains(contentType, "text/html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.htmlMaxChars)))
		if err != nil {
			return finalURL
		}

		if extracted := extractMediaURL(string(body), finalURL); extracted != "" {
			logger.Debug("Extracted embedded media URL",
				zap.String("page", finalURL),
				zap.String("media", extracted),
			)
			return extracted
		}
	}

	return finalURL
}

// heuristic pairs a selector with the attribute carrying the media URL.
type heuristic struct {
	selector string
	attr     string
}

// mediaHeuristics are tried strictly in order; the first hit wins. Meta
// tags describing the page's primary media come before raw embedded tags.
var mediaHeuristics = []heuristic{
	{`meta[property="og:video:url"]`, "content"},
	{`meta[property="og:video"]`, "content"},
	{`meta[name="twitter:player:stream"]`, "content"},
	{`meta[property="og:audio"]`, "content"},
	{`meta[property="og:image"]`, "content"},
	{"video", "src"},
	{"source", "src"},
	{"audio", "src"},
	{"img", "src"},
}

func extractMediaURL(html, baseURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, h := range mediaHeuristics {
		value, exists := doc.Find(h.selector).First().Attr(h.attr)
		if !exists || value == "" {
			continue
		}
		if absolute := absoluteURL(baseURL, value); absolute != "" {
			return absolute
		}
	}

	return ""
}

func absoluteURL(base, maybeRelative string) string {
	baseParsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(maybeRelative))
	if err != nil {
		return ""
	}
	return baseParsed.ResolveReference(ref).String()
}

func isMediaContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "video/")
}

func normalizeContentType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}
