package curation

import (
	"github.com/nulzo/model-curator/internal/monitor"
	"github.com/nulzo/model-curator/pkg/api"
)

// SelectionConstraints filter and rank candidates. They are never mutated.
type SelectionConstraints struct {
	MinQualityScore float64
	// RequireQualityScore rejects candidates that have never been scored.
	RequireQualityScore bool
	// RequirePerformanceData rejects candidates with no recorded requests.
	RequirePerformanceData bool
	// Thresholds, when set, rejects candidates whose recorded metrics miss them.
	Thresholds *monitor.Thresholds
	// MaxCostPerRequest, when set, rejects candidates whose nominal request
	// cost is known and exceeds it.
	MaxCostPerRequest    *float64
	RequiredCapabilities []api.Capability
}

// RankedProvider pairs a provider with its score.
type RankedProvider struct {
	ProviderID string       `json:"provider_id"`
	Score      QualityScore `json:"score"`
	Scored     bool         `json:"scored"`
}
