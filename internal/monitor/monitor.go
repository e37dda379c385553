// Package monitor keeps per-provider request counters and evaluates them
// against performance thresholds.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// Metrics is a point-in-time snapshot for one provider.
type Metrics struct {
	ProviderID         string        `json:"provider_id"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	AverageLatency     time.Duration `json:"average_latency"`
	TotalTokens        int64         `json:"total_tokens"`
	FirstRequestAt     time.Time     `json:"first_request_at"`
	LastRequestAt      time.Time     `json:"last_request_at"`
}

// ErrorRate is failed / total, zero when nothing was recorded.
func (m Metrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.FailedRequests) / float64(m.TotalRequests)
}

// Throughput is requests per second over the observed window.
func (m Metrics) Throughput() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	window := m.LastRequestAt.Sub(m.FirstRequestAt).Seconds()
	if window < 1 {
		window = 1
	}
	return float64(m.TotalRequests) / window
}

// Thresholds is the performance bar a provider must clear.
type Thresholds struct {
	MaxAverageLatency time.Duration `json:"max_average_latency"`
	MaxErrorRate      float64       `json:"max_error_rate"`
	// MinThroughput is ignored when zero.
	MinThroughput float64 `json:"min_throughput"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxAverageLatency: 10 * time.Second,
		MaxErrorRate:      0.2,
	}
}

// IsPerformingWell reports whether m clears t. A provider with no recorded
// requests cannot be evaluated yet and does not pass.
func IsPerformingWell(m Metrics, t Thresholds) bool {
	if m.TotalRequests == 0 {
		return false
	}
	if t.MaxAverageLatency > 0 && m.AverageLatency > t.MaxAverageLatency {
		return false
	}
	if m.ErrorRate() > t.MaxErrorRate {
		return false
	}
	if t.MinThroughput > 0 && m.Throughput() < t.MinThroughput {
		return false
	}
	return true
}

// Observer receives every recorded attempt, e.g. a Prometheus exporter.
type Observer interface {
	RecordAttempt(provider string, success bool, latencySeconds float64, tokens int)
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	metrics  map[string]*Metrics
	observer Observer
	now      func() time.Time
}

func New(observer Observer) *Monitor {
	return &Monitor{
		metrics:  make(map[string]*Metrics),
		observer: observer,
		now:      time.Now,
	}
}

// RecordRequest folds one attempt into the provider's snapshot.
func (m *Monitor) RecordRequest(providerID string, success bool, duration time.Duration, tokens int) {
	now := m.now()

	m.mu.Lock()
	pm, ok := m.metrics[providerID]
	if !ok {
		pm = &Metrics{ProviderID: providerID, FirstRequestAt: now}
		m.metrics[providerID] = pm
	}
	pm.TotalRequests++
	if success {
		pm.SuccessfulRequests++
	} else {
		pm.FailedRequests++
	}
	// incremental mean avoids keeping a latency sum that could overflow
	pm.AverageLatency += (duration - pm.AverageLatency) / time.Duration(pm.TotalRequests)
	if tokens > 0 {
		pm.TotalTokens += int64(tokens)
	}
	pm.LastRequestAt = now
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.RecordAttempt(providerID, success, duration.Seconds(), tokens)
	}
}

// GetMetrics returns a copy of the snapshot, false if nothing was recorded.
func (m *Monitor) GetMetrics(providerID string) (Metrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pm, ok := m.metrics[providerID]
	if !ok {
		return Metrics{}, false
	}
	return *pm, true
}

// All returns snapshots sorted by provider id.
func (m *Monitor) All() []Metrics {
	m.mu.RLock()
	out := make([]Metrics, 0, len(m.metrics))
	for _, pm := range m.metrics {
		out = append(out, *pm)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Reset drops a provider's history. Only re-registration calls this.
func (m *Monitor) Reset(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metrics, providerID)
}
