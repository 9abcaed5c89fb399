package inference

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/deepscan/backend/internal/risk"
)

// Result is the canonical shape every inference response is reduced to.
// Probability is always finite and in [0,1]; Risk is never empty.
type Result struct {
	MediaType   string          `json:"mediaType"`
	Probability float64         `json:"probability"`
	Risk        risk.Level      `json:"risk"`
	Raw         json.RawMessage `json:"-"`
}

// legacyResponse is the old contract: the canonical fields arrive directly.
type legacyResponse struct {
	MediaType   *string  `json:"mediaType"`
	Probability *float64 `json:"probability"`
	Risk        *string  `json:"risk"`
}

// currentResponse is the new contract: probability must be derived from the
// classifier's confidence and label, risk from the server's score.
type currentResponse struct {
	MediaType      *string  `json:"media_type"`
	RiskScore      *float64 `json:"risk_score"`
	Classification *struct {
		Confidence     *float64 `json:"confidence"`
		PredictedLabel *string  `json:"predicted_label"`
	} `json:"classification"`
}

// Normalize decodes either contract's response into a Result. The upload
// endpoint of the current contract may return an array; the first element
// is taken. A body matching neither contract fails with ErrInvalidResponse.
func Normalize(body []byte) (*Result, error) {
	payload := firstElement(body)

	var legacy legacyResponse
	if err := json.Unmarshal(payload, &legacy); err == nil && legacy.complete() {
		probability := clampProbability(*legacy.Probability)
		return &Result{
			MediaType:   *legacy.MediaType,
			Probability: probability,
			Risk:        risk.Level(*legacy.Risk),
			Raw:         payload,
		}, nil
	}

	var current currentResponse
	if err := json.Unmarshal(payload, &current); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !current.complete() {
		return nil, ErrInvalidResponse
	}

	confidence := *current.Classification.Confidence
	probability := confidence
	if *current.Classification.PredictedLabel != "synthetic" {
		probability = 1 - confidence
	}
	probability = clampProbability(probability)

	return &Result{
		MediaType:   *current.MediaType,
		Probability: probability,
		Risk:        risk.LevelFromScore(*current.RiskScore),
		Raw:         payload,
	}, nil
}

func (r legacyResponse) complete() bool {
	return r.MediaType != nil && r.Probability != nil && r.Risk != nil &&
		isFinite(*r.Probability)
}

func (r currentResponse) complete() bool {
	return r.MediaType != nil && r.RiskScore != nil && isFinite(*r.RiskScore) &&
		r.Classification != nil &&
		r.Classification.Confidence != nil && isFinite(*r.Classification.Confidence) &&
		r.Classification.PredictedLabel != nil
}

// firstElement unwraps a JSON array body to its first element; any other
// body passes through untouched.
func firstElement(body []byte) json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return body
}

func clampProbability(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
