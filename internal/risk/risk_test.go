package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreatScore(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		expected    int
	}{
		{name: "zero", probability: 0, expected: 0},
		{name: "half", probability: 0.5, expected: 50},
		{name: "rounds up", probability: 0.456, expected: 46},
		{name: "rounds down", probability: 0.454, expected: 45},
		{name: "one", probability: 1, expected: 100},
		{name: "clamps above", probability: 1.2, expected: 100},
		{name: "clamps below", probability: -0.3, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ThreatScore(tt.probability))
		})
	}
}

func TestThreatScore_Monotonic(t *testing.T) {
	prev := ThreatScore(0)
	for p := 0.01; p <= 1.0; p += 0.01 {
		score := ThreatScore(p)
		if score < prev {
			t.Fatalf("threat score decreased at p=%.2f: %d < %d", p, score, prev)
		}
		prev = score
	}
}

func TestLevelFromProbability(t *testing.T) {
	tests := []struct {
		probability float64
		expected    Level
	}{
		{0.0, LevelLow},
		{0.44, LevelLow},
		{0.45, LevelMedium},
		{0.74, LevelMedium},
		{0.75, LevelHigh},
		{1.0, LevelHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelFromProbability(tt.probability),
			"probability %v", tt.probability)
	}
}

func TestLevelFromScore(t *testing.T) {
	tests := []struct {
		score    float64
		expected Level
	}{
		{0, LevelLow},
		{44.9, LevelLow},
		{45, LevelMedium},
		{74.9, LevelMedium},
		{75, LevelHigh},
		{100, LevelHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelFromScore(tt.score), "score %v", tt.score)
	}
}

func TestExplanation_BandsMatchLevels(t *testing.T) {
	for _, p := range []float64{0.1, 0.45, 0.6, 0.75, 0.99} {
		text := Explanation(p)
		switch LevelFromProbability(p) {
		case LevelHigh:
			assert.Contains(t, text, "high likelihood")
		case LevelMedium:
			assert.Contains(t, text, "medium-risk band")
		default:
			assert.Contains(t, text, "lower likelihood")
		}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(LevelHigh))
	assert.True(t, Valid(LevelMedium))
	assert.True(t, Valid(LevelLow))
	assert.False(t, Valid(LevelUnknown))
	assert.False(t, Valid(Level("Critical")))
}
