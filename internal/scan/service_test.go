package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscan/backend/internal/inference"
	"github.com/deepscan/backend/internal/resolver"
	"github.com/deepscan/backend/internal/risk"
	"github.com/deepscan/backend/internal/storage/models"
)

type stubResolver struct {
	failFor map[string]error
}

func (r *stubResolver) Resolve(_ context.Context, inputURL string) (string, error) {
	if err, ok := r.failFor[inputURL]; ok {
		return "", err
	}
	return inputURL + "#resolved", nil
}

type stubAnalyzer struct {
	results map[string]*inference.Result
	errs    map[string]error
}

func (a *stubAnalyzer) AnalyzeURL(_ context.Context, mediaURL string) (*inference.Result, error) {
	key := strings.TrimSuffix(mediaURL, "#resolved")
	if err, ok := a.errs[key]; ok {
		return nil, err
	}
	if result, ok := a.results[key]; ok {
		return result, nil
	}
	return &inference.Result{MediaType: "image", Probability: 0.1, Risk: risk.LevelLow}, nil
}

func (a *stubAnalyzer) AnalyzeFile(_ context.Context, _ []byte, filename, _ string) (*inference.Result, error) {
	if err, ok := a.errs[filename]; ok {
		return nil, err
	}
	return &inference.Result{MediaType: "video", Probability: 0.8, Risk: risk.LevelHigh}, nil
}

type stubStore struct {
	mu      sync.Mutex
	scans   []*models.ScanRecord
	proofs  []*models.ReportProof
	scanErr error
}

func (s *stubStore) InsertScan(_ context.Context, record *models.ScanRecord) error {
	if s.scanErr != nil {
		return s.scanErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, record)
	return nil
}

func (s *stubStore) GetScanHistory(_ context.Context, userID string, _, _ int) ([]models.ScanRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScanRecord
	for _, record := range s.scans {
		if record.UserID == userID {
			out = append(out, *record)
		}
	}
	return out, len(out), nil
}

func (s *stubStore) InsertProof(_ context.Context, proof *models.ReportProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs = append(s.proofs, proof)
	return nil
}

func (s *stubStore) ListProofs(_ context.Context, _ string, _, _ int) ([]models.ReportProof, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReportProof, 0, len(s.proofs))
	for _, p := range s.proofs {
		out = append(out, *p)
	}
	return out, len(out), nil
}

type stubCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	hits   int
	misses int
}

func newStubCache() *stubCache {
	return &stubCache{data: map[string][]byte{}}
}

func (c *stubCache) GetScan(_ context.Context, urlHash string, result interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[urlHash]
	if !ok {
		c.misses++
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, result)
}

func (c *stubCache) SetScan(_ context.Context, urlHash string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[urlHash] = raw
	return nil
}

func newTestService(store *stubStore, analyzer *stubAnalyzer, cache Cache) *Service {
	return NewService(store, &stubResolver{}, analyzer, cache)
}

func TestScanURL_Success(t *testing.T) {
	store := &stubStore{}
	analyzer := &stubAnalyzer{results: map[string]*inference.Result{
		"https://example.com/a.png": {MediaType: "image", Probability: 0.82, Risk: risk.LevelHigh},
	}}
	svc := newTestService(store, analyzer, nil)

	result, err := svc.ScanURL(context.Background(), "user-1", "https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, "image", result.MediaType)
	assert.Equal(t, risk.LevelHigh, result.RiskLevel)
	assert.Equal(t, 82, result.ThreatScore)
	assert.Equal(t, "https://example.com/a.png", result.SourceURL)
	assert.Equal(t, "https://example.com/a.png#resolved", result.AnalyzedURL)
	assert.NotEmpty(t, result.Explanation)

	require.Len(t, store.scans, 1)
	record := store.scans[0]
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "https://example.com/a.png", record.MediaURL)
	assert.Equal(t, "High", record.RiskLevel)
	assert.Equal(t, "v1.0-audio-image", record.AIVersion)
}

func TestScanURL_InvalidURLRejected(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store,
		&stubResolver{failFor: map[string]error{"not-a-url": resolver.ErrInvalidURL}},
		&stubAnalyzer{}, nil)

	_, err := svc.ScanURL(context.Background(), "user-1", "not-a-url")
	assert.ErrorIs(t, err, resolver.ErrInvalidURL)
	assert.Empty(t, store.scans)
}

func TestScanURL_InferenceFailureNotPersisted(t *testing.T) {
	store := &stubStore{}
	analyzer := &stubAnalyzer{errs: map[string]error{
		"https://example.com/a.png": inference.ErrUnavailable,
	}}
	svc := newTestService(store, analyzer, nil)

	_, err := svc.ScanURL(context.Background(), "user-1", "https://example.com/a.png")
	assert.ErrorIs(t, err, inference.ErrUnavailable)
	assert.Empty(t, store.scans)
}

func TestScanURL_CacheReusesVerdictButStillRecords(t *testing.T) {
	store := &stubStore{}
	cache := newStubCache()
	analyzer := &stubAnalyzer{results: map[string]*inference.Result{
		"https://example.com/a.png": {MediaType: "image", Probability: 0.9, Risk: risk.LevelHigh},
	}}
	svc := newTestService(store, analyzer, cache)

	first, err := svc.ScanURL(context.Background(), "user-1", "https://example.com/a.png")
	require.NoError(t, err)

	// Second scan must serve the cached verdict, not re-run inference.
	analyzer.errs = map[string]error{"https://example.com/a.png": inference.ErrUnavailable}

	second, err := svc.ScanURL(context.Background(), "user-2", "https://example.com/a.png")
	require.NoError(t, err)

	assert.Equal(t, first.Probability, second.Probability)
	assert.Equal(t, first.RiskLevel, second.RiskLevel)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.misses)

	// Each request still leaves its own history record.
	assert.Len(t, store.scans, 2)
}

func TestScanFile_Success(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	result, err := svc.ScanFile(context.Background(), "user-1", []byte("bytes"), "clip.mp4", "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, "video", result.MediaType)
	assert.Equal(t, risk.LevelHigh, result.RiskLevel)
	assert.Empty(t, result.SourceURL)

	require.Len(t, store.scans, 1)
	assert.Equal(t, "uploaded:clip.mp4", store.scans[0].MediaURL)
	assert.Equal(t, "v1.0-audio-image-video", store.scans[0].AIVersion)
}

func TestBulkScan_MixedOutcomes(t *testing.T) {
	store := &stubStore{}
	analyzer := &stubAnalyzer{
		results: map[string]*inference.Result{
			"https://a.example/1": {MediaType: "image", Probability: 0.9, Risk: risk.LevelHigh},
			"https://a.example/2": {MediaType: "image", Probability: 0.8, Risk: risk.LevelHigh},
			"https://a.example/3": {MediaType: "audio", Probability: 0.5, Risk: risk.LevelMedium},
			"https://a.example/4": {MediaType: "image", Probability: 0.1, Risk: risk.LevelLow},
		},
		errs: map[string]error{
			"https://a.example/5": inference.ErrUnavailable,
		},
	}
	svc := newTestService(store, analyzer, nil)

	summary := svc.BulkScan(context.Background(), "user-1", []string{
		"https://a.example/1",
		"https://a.example/2",
		"https://a.example/3",
		"https://a.example/4",
		"https://a.example/5",
	}, nil)

	assert.Equal(t, 2, summary.High)
	assert.Equal(t, 1, summary.Medium)
	assert.Equal(t, 1, summary.Low)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 5, summary.Scanned)
	assert.Equal(t, risk.LevelHigh, summary.Overall)

	// One record per successful item only.
	assert.Len(t, store.scans, 4)
	for _, record := range store.scans {
		assert.Equal(t, "v1.0-bulk", record.AIVersion)
	}

	// Results keep submission order and failures stay in place.
	require.Len(t, summary.Results, 5)
	for i, item := range summary.Results {
		assert.Equal(t, fmt.Sprintf("https://a.example/%d", i+1), item.URL)
	}
	assert.Equal(t, "failed", summary.Results[4].Status)
	assert.NotEmpty(t, summary.Results[4].Error)
}

func TestBulkScan_TruncatesToLimit(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://a.example/%d", i)
	}

	summary := svc.BulkScan(context.Background(), "user-1", urls, nil)
	assert.Equal(t, MaxBulkItems, summary.Scanned)
	assert.Len(t, summary.Results, MaxBulkItems)
	assert.Len(t, store.scans, MaxBulkItems)
}

func TestBulkScan_AllFailedIsUnknown(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store,
		&stubResolver{failFor: map[string]error{
			"bad-1": resolver.ErrInvalidURL,
			"bad-2": resolver.ErrInvalidURL,
		}},
		&stubAnalyzer{}, nil)

	summary := svc.BulkScan(context.Background(), "user-1", []string{"bad-1", "bad-2"}, nil)
	assert.Equal(t, risk.LevelUnknown, summary.Overall)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, summary.Successful)
	assert.Empty(t, store.scans)
}

func TestBulkScan_ProgressCallbackFiresPerItem(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	var seen []BulkItem
	svc.BulkScan(context.Background(), "user-1", []string{
		"https://a.example/1",
		"https://a.example/2",
		"https://a.example/3",
	}, func(item BulkItem) {
		seen = append(seen, item)
	})

	assert.Len(t, seen, 3)
}

func TestBulkScan_StoreFailureMarksItemFailed(t *testing.T) {
	store := &stubStore{scanErr: errors.New("disk full")}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	summary := svc.BulkScan(context.Background(), "user-1", []string{"https://a.example/1"}, nil)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, risk.LevelUnknown, summary.Overall)
	assert.Equal(t, "failed to record scan", summary.Results[0].Error)
}

func TestCreateProof(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	summary := json.RawMessage(`{"overall":"High","scanned":3}`)
	proof, err := svc.CreateProof(context.Background(), "user-1", "scan-9", "bulk", summary)
	require.NoError(t, err)

	assert.Equal(t, "user-1", proof.UserID)
	assert.Equal(t, "scan-9", proof.ScanID)
	assert.Equal(t, "bulk", proof.ReportType)
	assert.Len(t, proof.ContentHash, 64)
	require.Len(t, store.proofs, 1)

	// Same summary always fingerprints the same.
	again, err := svc.CreateProof(context.Background(), "user-1", "scan-9", "bulk", summary)
	require.NoError(t, err)
	assert.Equal(t, proof.ContentHash, again.ContentHash)
}

func TestHistory_AddsThreatScorePerRow(t *testing.T) {
	store := &stubStore{scans: []*models.ScanRecord{
		{ID: "s1", UserID: "user-1", Probability: 0.82, RiskLevel: "High"},
		{ID: "s2", UserID: "user-1", Probability: 0.3, RiskLevel: "Low"},
		{ID: "s3", UserID: "someone-else", Probability: 0.5, RiskLevel: "Medium"},
	}}
	svc := newTestService(store, &stubAnalyzer{}, nil)

	items, total, err := svc.History(context.Background(), "user-1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)

	assert.Equal(t, "s1", items[0].ID)
	assert.Equal(t, 82, items[0].ThreatScore)
	assert.Equal(t, 30, items[1].ThreatScore)
}
