package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	AuthProvider string     `json:"authProvider"`
	ResetToken   string     `json:"-"`
	ResetExpires *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ScanRecord is the append-only history entry for one completed scan. It is
// created exactly once per successful scan and never mutated.
type ScanRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	MediaURL    string    `json:"mediaUrl"`
	MediaType   string    `json:"mediaType"`
	Probability float64   `json:"probability"`
	RiskLevel   string    `json:"riskLevel"`
	AIVersion   string    `json:"aiVersion"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ScanWithUser is a ScanRecord joined with the submitting user, for the
// admin scans listing.
type ScanWithUser struct {
	ScanRecord
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	UserRole  string `json:"userRole"`
}

// ReportProof is user-submitted evidence tied to a scan or a batch.
type ReportProof struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	ScanID      string          `json:"scanId,omitempty"`
	ReportType  string          `json:"reportType"`
	ContentHash string          `json:"contentHash"`
	Summary     json.RawMessage `json:"summary"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TrendRow is one (day, risk tier) count from the store's grouped trend
// query. Day is a YYYY-MM-DD key in UTC.
type TrendRow struct {
	Day       string
	RiskLevel string
	Count     int
}

// DistributionRow is one (media type, risk tier) count.
type DistributionRow struct {
	MediaType string
	RiskLevel string
	Count     int
}

// ScanSummary aggregates one user's scan history. AvgThreatScore is derived
// from AvgProbability when the summary is assembled.
type ScanSummary struct {
	TotalScans     int         `json:"totalScans"`
	HighRisk       int         `json:"highRisk"`
	MediumRisk     int         `json:"mediumRisk"`
	LowRisk        int         `json:"lowRisk"`
	AvgProbability float64     `json:"avgProbability"`
	AvgThreatScore int         `json:"averageThreatScore"`
	TopMediaType   string      `json:"topMediaType"`
	Latest         *ScanRecord `json:"latestScan,omitempty"`
}
