package risk

import "math"

// Level is a risk tier assigned to a scan.
type Level string

const (
	LevelHigh    Level = "High"
	LevelMedium  Level = "Medium"
	LevelLow     Level = "Low"
	LevelUnknown Level = "Unknown"
)

// Probability and score cut points express the same policy in two numeric
// ranges: probabilities live in [0,1], server risk scores in [0,100].
const (
	HighProbabilityThreshold   = 0.75
	MediumProbabilityThreshold = 0.45
	HighScoreThreshold         = 75.0
	MediumScoreThreshold       = 45.0
)

// ThreatScore rescales a probability to an integer 0-100 for display.
func ThreatScore(probability float64) int {
	raw := probability * 100
	return int(math.Round(math.Max(0, math.Min(100, raw))))
}

// LevelFromProbability assigns a tier from a [0,1] probability. Boundary
// values belong to the higher tier.
func LevelFromProbability(probability float64) Level {
	switch {
	case probability >= HighProbabilityThreshold:
		return LevelHigh
	case probability >= MediumProbabilityThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// LevelFromScore assigns a tier from a [0,100] server risk score.
func LevelFromScore(score float64) Level {
	switch {
	case score >= HighScoreThreshold:
		return LevelHigh
	case score >= MediumScoreThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Valid reports whether l is one of the three assigned tiers.
func Valid(l Level) bool {
	return l == LevelHigh || l == LevelMedium || l == LevelLow
}

// Explanation returns the display text for a probability band. The bands
// must stay aligned with LevelFromProbability.
func Explanation(probability float64) string {
	if probability >= HighProbabilityThreshold {
		return "Probability exceeds 0.75 threshold indicating high likelihood of synthetic manipulation."
	}
	if probability >= MediumProbabilityThreshold {
		return "Probability is in the medium-risk band (0.45 to 0.74), suggesting possible manipulation."
	}
	return "Probability is below 0.45 threshold, indicating lower likelihood of manipulation."
}
