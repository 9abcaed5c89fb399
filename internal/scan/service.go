package scan

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/inference"
	"github.com/deepscan/backend/internal/metrics"
	"github.com/deepscan/backend/internal/risk"
	"github.com/deepscan/backend/internal/storage/models"
	"github.com/deepscan/backend/pkg/logger"
	"github.com/deepscan/backend/pkg/utils"
)

// MaxBulkItems bounds a bulk request; excess URLs are silently dropped.
const MaxBulkItems = 5

// Pipeline version tags persisted with every scan record.
const (
	aiVersionURL  = "v1.0-audio-image"
	aiVersionFile = "v1.0-audio-image-video"
	aiVersionBulk = "v1.0-bulk"
)

type Store interface {
	InsertScan(ctx context.Context, record *models.ScanRecord) error
	GetScanHistory(ctx context.Context, userID string, page, limit int) ([]models.ScanRecord, int, error)
	InsertProof(ctx context.Context, proof *models.ReportProof) error
	ListProofs(ctx context.Context, userID string, page, limit int) ([]models.ReportProof, int, error)
}

type URLResolver interface {
	Resolve(ctx context.Context, inputURL string) (string, error)
}

type Analyzer interface {
	AnalyzeURL(ctx context.Context, mediaURL string) (*inference.Result, error)
	AnalyzeFile(ctx context.Context, data []byte, filename, mimeType string) (*inference.Result, error)
}

type Cache interface {
	GetScan(ctx context.Context, urlHash string, result interface{}) (bool, error)
	SetScan(ctx context.Context, urlHash string, result interface{}) error
}

// Service orchestrates the scan pipeline: resolve the submitted URL, invoke
// inference, persist the record, shape the response payload.
type Service struct {
	store    Store
	resolver URLResolver
	analyzer Analyzer
	cache    Cache
}

func NewService(store Store, resolver URLResolver, analyzer Analyzer, cache Cache) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		analyzer: analyzer,
		cache:    cache,
	}
}

// Result is the response payload for a completed scan.
type Result struct {
	MediaType   string     `json:"mediaType"`
	Probability float64    `json:"probability"`
	RiskLevel   risk.Level `json:"riskLevel"`
	ThreatScore int        `json:"threatScore"`
	Explanation string     `json:"explanation"`
	Timestamp   time.Time  `json:"timestamp"`
	SourceURL   string     `json:"sourceUrl,omitempty"`
	AnalyzedURL string     `json:"analyzedUrl,omitempty"`
}

// ScanURL runs the full pipeline for one submitted URL.
func (s *Service) ScanURL(ctx context.Context, userID, mediaURL string) (*Result, error) {
	started := time.Now()

	resolvedURL, err := s.resolver.Resolve(ctx, mediaURL)
	if err != nil {
		metrics.ScanTotal.WithLabelValues("url", "rejected").Inc()
		return nil, err
	}

	aiResult, err := s.analyze(ctx, resolvedURL)
	if err != nil {
		metrics.ScanTotal.WithLabelValues("url", "failed").Inc()
		return nil, err
	}

	record := s.newRecord(userID, mediaURL, aiResult, aiVersionURL)
	if err := s.store.InsertScan(ctx, record); err != nil {
		metrics.ScanTotal.WithLabelValues("url", "failed").Inc()
		return nil, err
	}

	s.observe("url", aiResult, started)

	result := buildResult(aiResult, record.CreatedAt)
	result.SourceURL = mediaURL
	result.AnalyzedURL = resolvedURL
	return result, nil
}

// ScanFile runs the pipeline for uploaded media bytes. No resolution step;
// the bytes go straight to inference.
func (s *Service) ScanFile(ctx context.Context, userID string, data []byte, filename, mimeType string) (*Result, error) {
	started := time.Now()

	if filename == "" {
		filename = "file"
	}

	aiResult, err := s.analyzer.AnalyzeFile(ctx, data, filename, mimeType)
	if err != nil {
		metrics.ScanTotal.WithLabelValues("file", "failed").Inc()
		return nil, err
	}

	record := s.newRecord(userID, "uploaded:"+filename, aiResult, aiVersionFile)
	if err := s.store.InsertScan(ctx, record); err != nil {
		metrics.ScanTotal.WithLabelValues("file", "failed").Inc()
		return nil, err
	}

	s.observe("file", aiResult, started)

	return buildResult(aiResult, record.CreatedAt), nil
}

// analyze invokes inference for a resolved URL, reusing a cached verdict
// when one is fresh.
func (s *Service) analyze(ctx context.Context, resolvedURL string) (*inference.Result, error) {
	urlHash := utils.HashString(resolvedURL)

	if s.cache != nil {
		var cached inference.Result
		hit, err := s.cache.GetScan(ctx, urlHash, &cached)
		if err != nil {
			logger.Warn("Scan cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("scan").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("scan").Inc()
	}

	aiResult, err := s.analyzer.AnalyzeURL(ctx, resolvedURL)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetScan(ctx, urlHash, aiResult); err != nil {
			logger.Warn("Scan cache store failed", zap.Error(err))
		}
	}

	return aiResult, nil
}

func (s *Service) newRecord(userID, mediaURL string, aiResult *inference.Result, aiVersion string) *models.ScanRecord {
	return &models.ScanRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		MediaURL:    mediaURL,
		MediaType:   aiResult.MediaType,
		Probability: aiResult.Probability,
		RiskLevel:   string(aiResult.Risk),
		AIVersion:   aiVersion,
		CreatedAt:   time.Now().UTC(),
	}
}

func (s *Service) observe(kind string, aiResult *inference.Result, started time.Time) {
	metrics.ScanTotal.WithLabelValues(kind, "success").Inc()
	metrics.ScanDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	metrics.ScanRiskTotal.WithLabelValues(string(aiResult.Risk), aiResult.MediaType).Inc()
	metrics.ThreatScoreObserved.Observe(float64(risk.ThreatScore(aiResult.Probability)))
}

func buildResult(aiResult *inference.Result, createdAt time.Time) *Result {
	return &Result{
		MediaType:   aiResult.MediaType,
		Probability: aiResult.Probability,
		RiskLevel:   aiResult.Risk,
		ThreatScore: risk.ThreatScore(aiResult.Probability),
		Explanation: risk.Explanation(aiResult.Probability),
		Timestamp:   createdAt,
	}
}

// CreateProof appends an evidence record for a scan or batch. The content
// hash fingerprints the summary so a report can be verified later.
func (s *Service) CreateProof(ctx context.Context, userID, scanID, reportType string, summary json.RawMessage) (*models.ReportProof, error) {
	if len(summary) == 0 {
		summary = json.RawMessage("{}")
	}

	proof := &models.ReportProof{
		ID:          uuid.NewString(),
		UserID:      userID,
		ScanID:      scanID,
		ReportType:  reportType,
		ContentHash: utils.HashString(string(summary)),
		Summary:     summary,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.InsertProof(ctx, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

func (s *Service) ListProofs(ctx context.Context, userID string, page, limit int) ([]models.ReportProof, int, error) {
	return s.store.ListProofs(ctx, userID, page, limit)
}

// HistoryItem is a stored scan decorated with its display threat score.
type HistoryItem struct {
	models.ScanRecord
	ThreatScore int `json:"threatScore"`
}

// History pages through the caller's past scans, newest first. Page and
// limit are clamped to sane bounds rather than rejected.
func (s *Service) History(ctx context.Context, userID string, page, limit int) ([]HistoryItem, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	records, total, err := s.store.GetScanHistory(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	items := make([]HistoryItem, len(records))
	for i, record := range records {
		items[i] = HistoryItem{
			ScanRecord:  record,
			ThreatScore: risk.ThreatScore(record.Probability),
		}
	}
	return items, total, nil
}

// BulkItem is the per-URL outcome of a bulk scan. Failures are values here,
// never raised faults; one item failing must not disturb its siblings.
type BulkItem struct {
	URL         string     `json:"url"`
	AnalyzedURL string     `json:"analyzedUrl,omitempty"`
	Status      string     `json:"status"`
	Risk        risk.Level `json:"risk,omitempty"`
	MediaType   string     `json:"mediaType,omitempty"`
	Probability float64    `json:"probability,omitempty"`
	ThreatScore int        `json:"threatScore,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// BulkSummary reduces the settled items to tier tallies and an overall
// verdict.
type BulkSummary struct {
	High       int        `json:"high"`
	Medium     int        `json:"medium"`
	Low        int        `json:"low"`
	Overall    risk.Level `json:"overall"`
	Scanned    int        `json:"scanned"`
	Failed     int        `json:"failed"`
	Successful int        `json:"successful"`
	Results    []BulkItem `json:"results"`
}

// BulkScan fans the pipeline out over at most MaxBulkItems URLs. Every item
// runs concurrently and is allowed to settle; results keep input order
// regardless of completion order. onItem, when non-nil, is invoked as each
// item settles (serialized, for progress streaming).
func (s *Service) BulkScan(ctx context.Context, userID string, urls []string, onItem func(BulkItem)) *BulkSummary {
	if len(urls) > MaxBulkItems {
		urls = urls[:MaxBulkItems]
	}

	metrics.BulkItemsScanned.Observe(float64(len(urls)))

	results := make([]BulkItem, len(urls))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()

			item := s.scanBulkItem(ctx, userID, url)
			results[i] = item

			if onItem != nil {
				mu.Lock()
				onItem(item)
				mu.Unlock()
			}
		}(i, url)
	}
	wg.Wait()

	summary := &BulkSummary{
		Overall: risk.LevelUnknown,
		Scanned: len(urls),
		Results: results,
	}

	for _, item := range results {
		if item.Status != "success" {
			summary.Failed++
			continue
		}

		switch item.Risk {
		case risk.LevelHigh:
			summary.High++
		case risk.LevelMedium:
			summary.Medium++
		default:
			summary.Low++
		}
	}

	summary.Successful = summary.High + summary.Medium + summary.Low
	if summary.Successful > 0 {
		summary.Overall = risk.LevelLow
		if summary.High > 0 {
			summary.Overall = risk.LevelHigh
		} else if summary.Medium > 0 {
			summary.Overall = risk.LevelMedium
		}
	}

	return summary
}

func (s *Service) scanBulkItem(ctx context.Context, userID, url string) BulkItem {
	resolvedURL, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return BulkItem{URL: url, Status: "failed", Error: err.Error()}
	}

	// Bulk items always hit inference directly; cached verdicts are not
	// reused so a batch reflects the service's current judgement.
	aiResult, err := s.analyzer.AnalyzeURL(ctx, resolvedURL)
	if err != nil {
		return BulkItem{URL: url, Status: "failed", Error: err.Error()}
	}

	record := s.newRecord(userID, url, aiResult, aiVersionBulk)
	if err := s.store.InsertScan(ctx, record); err != nil {
		logger.Error("Failed to persist bulk scan item",
			zap.String("url", url),
			zap.Error(err),
		)
		return BulkItem{URL: url, Status: "failed", Error: "failed to record scan"}
	}

	metrics.ScanRiskTotal.WithLabelValues(string(aiResult.Risk), aiResult.MediaType).Inc()

	return BulkItem{
		URL:         url,
		AnalyzedURL: resolvedURL,
		Status:      "success",
		Risk:        aiResult.Risk,
		MediaType:   aiResult.MediaType,
		Probability: aiResult.Probability,
		ThreatScore: risk.ThreatScore(aiResult.Probability),
	}
}
