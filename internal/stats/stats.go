package stats

import (
	"context"
	"time"

	"github.com/deepscan/backend/internal/risk"
	"github.com/deepscan/backend/internal/storage/models"
)

// Trend window bounds, in days. Requests outside the range are clamped,
// never rejected.
const (
	MinTrendDays     = 3
	MaxTrendDays     = 30
	DefaultTrendDays = 7
)

type Store interface {
	TrendRows(ctx context.Context, since time.Time) ([]models.TrendRow, error)
	DistributionRows(ctx context.Context) ([]models.DistributionRow, error)
	ScanSummary(ctx context.Context, userID string) (*models.ScanSummary, error)
	CountUsers(ctx context.Context) (int, error)
	CountScans(ctx context.Context) (int, error)
	CountScansByRisk(ctx context.Context, riskLevel string) (int, error)
	CountProofs(ctx context.Context) (int, error)
}

// Service computes aggregate views over the scan history.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// TrendPoint is one calendar day of the risk trend. Days with no scans are
// present with zero counts so the series has no gaps. The tier keys are
// capitalized on the wire to match the stored tier names.
type TrendPoint struct {
	Date   string `json:"date"`
	High   int    `json:"High"`
	Medium int    `json:"Medium"`
	Low    int    `json:"Low"`
	Total  int    `json:"total"`
}

// RiskTrend returns one point per UTC calendar day for the trailing window,
// oldest first and ending today. The window includes today, so days=7 spans
// today and the six days before it.
func (s *Service) RiskTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	days = clampDays(days)

	today := s.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	rows, err := s.store.TrendRows(ctx, start)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, days)
	index := make(map[string]*TrendPoint, days)
	for i := range points {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		points[i].Date = day
		index[day] = &points[i]
	}

	for _, row := range rows {
		point, ok := index[row.Day]
		if !ok {
			continue
		}
		switch risk.Level(row.RiskLevel) {
		case risk.LevelHigh:
			point.High += row.Count
		case risk.LevelMedium:
			point.Medium += row.Count
		case risk.LevelLow:
			point.Low += row.Count
		default:
			continue
		}
		point.Total += row.Count
	}

	return points, nil
}

func clampDays(days int) int {
	if days == 0 {
		return DefaultTrendDays
	}
	if days < MinTrendDays {
		return MinTrendDays
	}
	if days > MaxTrendDays {
		return MaxTrendDays
	}
	return days
}

// Distribution is the media-type by risk-tier count matrix. Every cell is
// present even when zero.
type Distribution map[string]map[string]int

var (
	distributionMediaTypes = []string{"image", "audio", "video"}
	distributionTiers      = []risk.Level{risk.LevelHigh, risk.LevelMedium, risk.LevelLow}
)

func (s *Service) Distribution(ctx context.Context) (Distribution, error) {
	rows, err := s.store.DistributionRows(ctx)
	if err != nil {
		return nil, err
	}

	dist := make(Distribution, len(distributionMediaTypes))
	for _, mediaType := range distributionMediaTypes {
		dist[mediaType] = make(map[string]int, len(distributionTiers))
		for _, tier := range distributionTiers {
			dist[mediaType][string(tier)] = 0
		}
	}

	for _, row := range rows {
		tiers, ok := dist[row.MediaType]
		if !ok {
			continue
		}
		if _, ok := tiers[row.RiskLevel]; !ok {
			continue
		}
		tiers[row.RiskLevel] += row.Count
	}

	return dist, nil
}

// UserSummary is the per-user dashboard aggregate.
func (s *Service) UserSummary(ctx context.Context, userID string) (*models.ScanSummary, error) {
	summary, err := s.store.ScanSummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.AvgThreatScore = risk.ThreatScore(summary.AvgProbability)
	return summary, nil
}

// AdminStats is the operator dashboard headline view.
type AdminStats struct {
	TotalUsers      int `json:"totalUsers"`
	TotalScans      int `json:"totalScans"`
	HighRiskScans   int `json:"highRiskScans"`
	MediumRiskScans int `json:"mediumRiskScans"`
	LowRiskScans    int `json:"lowRiskScans"`
	TotalProofs     int `json:"totalProofs"`
}

func (s *Service) AdminStats(ctx context.Context) (*AdminStats, error) {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	scans, err := s.store.CountScans(ctx)
	if err != nil {
		return nil, err
	}
	proofs, err := s.store.CountProofs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &AdminStats{
		TotalUsers:  users,
		TotalScans:  scans,
		TotalProofs: proofs,
	}

	for _, tier := range []struct {
		level risk.Level
		dst   *int
	}{
		{risk.LevelHigh, &stats.HighRiskScans},
		{risk.LevelMedium, &stats.MediumRiskScans},
		{risk.LevelLow, &stats.LowRiskScans},
	} {
		count, err := s.store.CountScansByRisk(ctx, string(tier.level))
		if err != nil {
			return nil, err
		}
		*tier.dst = count
	}

	return stats, nil
}
