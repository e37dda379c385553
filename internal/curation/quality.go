package curation

import (
	"math"
	"time"

	"github.com/nulzo/model-curator/internal/monitor"
	"github.com/nulzo/model-curator/pkg/api"
)

// Component weights of the overall score. They sum to 1.
const (
	WeightSpeed       = 0.25
	WeightReliability = 0.35
	WeightCost        = 0.15
	WeightFeatures    = 0.25
)

const (
	neutralScore = 0.5
	// featureSaturation distinct capabilities earn a full features score.
	featureSaturation = 4
	// latencyPivot is the average latency that scores 0.5 on speed.
	latencyPivot = 2 * time.Second
	// costScale maps an average USD per 1k tokens onto the cost curve.
	costScale = 10.0
)

// QualityScore components and Overall all lie in [0,1].
type QualityScore struct {
	Speed          float64   `json:"speed"`
	Reliability    float64   `json:"reliability"`
	CostEfficiency float64   `json:"cost_efficiency"`
	Features       float64   `json:"features"`
	Overall        float64   `json:"overall"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Combine derives Overall from the components.
func Combine(speed, reliability, cost, features float64) QualityScore {
	s := QualityScore{
		Speed:          clamp01(speed),
		Reliability:    clamp01(reliability),
		CostEfficiency: clamp01(cost),
		Features:       clamp01(features),
	}
	s.Overall = clamp01(WeightSpeed*s.Speed +
		WeightReliability*s.Reliability +
		WeightCost*s.CostEfficiency +
		WeightFeatures*s.Features)
	return s
}

// FeaturesScore rewards the breadth of distinct capabilities across models.
func FeaturesScore(models []api.ModelInfo) float64 {
	seen := make(map[api.Capability]struct{})
	for _, m := range models {
		for _, c := range m.Capabilities {
			if _, known := api.ParseCapability(string(c)); known {
				seen[c] = struct{}{}
			}
		}
	}
	return clamp01(float64(len(seen)) / featureSaturation)
}

// CostEfficiencyScore uses the cheapest model: 1.0 if any is free, neutral
// if none is priced.
func CostEfficiencyScore(models []api.ModelInfo) float64 {
	cheapest := math.Inf(1)
	for _, m := range models {
		if m.IsFree {
			return 1.0
		}
		if m.Pricing == nil {
			continue
		}
		avg := (m.Pricing.InputPer1K + m.Pricing.OutputPer1K) / 2
		if avg < 0 || math.IsNaN(avg) {
			continue
		}
		if avg < cheapest {
			cheapest = avg
		}
	}
	if math.IsInf(cheapest, 1) {
		return neutralScore
	}
	return CostEfficiencyFromRate(cheapest)
}

// CostEfficiencyFromRate maps a USD per 1k tokens rate onto (0,1].
func CostEfficiencyFromRate(per1K float64) float64 {
	if per1K <= 0 {
		return 1.0
	}
	return clamp01(1 / (1 + costScale*per1K))
}

// SpeedScore maps average latency onto (0,1], neutral without data.
func SpeedScore(m monitor.Metrics, ok bool) float64 {
	if !ok || m.TotalRequests == 0 {
		return neutralScore
	}
	if m.AverageLatency <= 0 {
		return 1.0
	}
	return clamp01(1 / (1 + float64(m.AverageLatency)/float64(latencyPivot)))
}

// ReliabilityComponent is neutral until an outcome was recorded.
func ReliabilityComponent(t ReliabilityTracker, ok bool) float64 {
	if !ok || t.TotalRequests == 0 {
		return neutralScore
	}
	return t.EffectiveReliability()
}

// CostPerRequest is the nominal cost of a 1000+1000 token request on the
// cheapest model. ok is false when no model is free or priced.
func CostPerRequest(models []api.ModelInfo) (cost float64, ok bool) {
	cost = math.Inf(1)
	for _, m := range models {
		c, priced := m.EstimateRequestCost(1000, 1000)
		if !priced {
			continue
		}
		ok = true
		if c < cost {
			cost = c
		}
	}
	if !ok {
		return 0, false
	}
	return cost, true
}

// HasCapability reports whether any model advertises c.
func HasCapability(models []api.ModelInfo, c api.Capability) bool {
	for _, m := range models {
		if m.HasCapability(c) {
			return true
		}
	}
	return false
}
