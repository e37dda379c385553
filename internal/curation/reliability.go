package curation

import (
	"encoding/json"
	"time"
)

// ReliabilityStatus is ordered worst to best.
type ReliabilityStatus int

const (
	StatusCritical ReliabilityStatus = iota
	StatusDegraded
	StatusGood
	StatusExcellent
)

func (s ReliabilityStatus) String() string {
	switch s {
	case StatusExcellent:
		return "excellent"
	case StatusGood:
		return "good"
	case StatusDegraded:
		return "degraded"
	default:
		return "critical"
	}
}

func (s ReliabilityStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

const (
	penaltyPerFailure = 0.05
	maxPenalty        = 0.5
)

// ReliabilityTracker is a value snapshot; the Curator owns the live copies.
type ReliabilityTracker struct {
	ProviderID          string    `json:"provider_id"`
	TotalRequests       int64     `json:"total_requests"`
	Failures            int64     `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

func (t *ReliabilityTracker) RecordSuccess(now time.Time) {
	t.TotalRequests++
	t.ConsecutiveFailures = 0
	t.LastSuccess = now
}

func (t *ReliabilityTracker) RecordFailure(now time.Time) {
	t.TotalRequests++
	t.Failures++
	t.ConsecutiveFailures++
	t.LastFailure = now
}

func (t ReliabilityTracker) Successes() int64 {
	return t.TotalRequests - t.Failures
}

// ReliabilityScore is successes / total, 1.0 before any outcome.
func (t ReliabilityTracker) ReliabilityScore() float64 {
	if t.TotalRequests == 0 {
		return 1.0
	}
	return float64(t.Successes()) / float64(t.TotalRequests)
}

// ConsecutiveFailurePenalty grows linearly with the current failure streak.
func (t ReliabilityTracker) ConsecutiveFailurePenalty() float64 {
	p := penaltyPerFailure * float64(t.ConsecutiveFailures)
	if p > maxPenalty {
		return maxPenalty
	}
	return p
}

// EffectiveReliability is the score used for selection and avoidance.
func (t ReliabilityTracker) EffectiveReliability() float64 {
	return clamp01(t.ReliabilityScore() - t.ConsecutiveFailurePenalty())
}

func (t ReliabilityTracker) Status(cfg Config) ReliabilityStatus {
	if cfg.MaxConsecutiveFailures > 0 && t.ConsecutiveFailures >= cfg.MaxConsecutiveFailures {
		return StatusCritical
	}
	r := t.EffectiveReliability()
	switch {
	case r >= 0.95:
		return StatusExcellent
	case r >= 0.8:
		return StatusGood
	case r >= 0.5:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// ShouldAvoid is the single predicate consulted before dispatch.
func (t ReliabilityTracker) ShouldAvoid(cfg Config) bool {
	if cfg.MaxConsecutiveFailures > 0 && t.ConsecutiveFailures >= cfg.MaxConsecutiveFailures {
		return true
	}
	// the reliability floor only holds during a failure streak so a single
	// success clears avoidance
	if t.ConsecutiveFailures > 0 && t.TotalRequests >= int64(cfg.MinRequests) &&
		t.EffectiveReliability() < cfg.MinReliability {
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
