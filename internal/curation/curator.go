// Package curation tracks provider reliability, scores provider quality and
// selects providers under constraints.
package curation

import (
	"sort"
	"sync"
	"time"

	"github.com/nulzo/model-curator/internal/monitor"
	"github.com/nulzo/model-curator/pkg/api"
	"go.uber.org/zap"
)

// Observer receives score and avoidance updates, e.g. a Prometheus exporter.
type Observer interface {
	SetQuality(provider, component string, value float64)
	SetAvoided(provider string, avoided bool)
}

// Curator is safe for concurrent use. Reads take the shared lock.
type Curator struct {
	cfg      Config
	monitor  *monitor.Monitor
	observer Observer
	log      *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	trackers map[string]*ReliabilityTracker
	// scoredAt marks providers whose model list has been recorded. Scores
	// themselves are always derived on read.
	scoredAt map[string]time.Time
	models   map[string][]api.ModelInfo
}

func New(cfg Config, mon *monitor.Monitor, observer Observer, log *zap.Logger) *Curator {
	if log == nil {
		log = zap.NewNop()
	}
	if mon == nil {
		mon = monitor.New(nil)
	}
	return &Curator{
		cfg:      cfg,
		monitor:  mon,
		observer: observer,
		log:      log.Named("curator"),
		now:      time.Now,
		trackers: make(map[string]*ReliabilityTracker),
		scoredAt: make(map[string]time.Time),
		models:   make(map[string][]api.ModelInfo),
	}
}

func (c *Curator) Config() Config {
	return c.cfg
}

func (c *Curator) tracker(id string) *ReliabilityTracker {
	t, ok := c.trackers[id]
	if !ok {
		t = &ReliabilityTracker{ProviderID: id}
		c.trackers[id] = t
	}
	return t
}

func (c *Curator) RecordSuccess(id string) {
	c.record(id, true)
}

func (c *Curator) RecordFailure(id string) {
	c.record(id, false)
}

func (c *Curator) record(id string, success bool) {
	c.mu.Lock()
	t := c.tracker(id)
	before := t.ShouldAvoid(c.cfg)
	if success {
		t.RecordSuccess(c.now())
	} else {
		t.RecordFailure(c.now())
	}
	after := t.ShouldAvoid(c.cfg)
	snapshot := *t
	c.mu.Unlock()

	if before == after {
		return
	}
	if after {
		c.log.Warn("provider now avoided",
			zap.String("provider", id),
			zap.Int("consecutive_failures", snapshot.ConsecutiveFailures),
			zap.Float64("reliability", snapshot.ReliabilityScore()))
	} else {
		c.log.Info("provider no longer avoided", zap.String("provider", id))
	}
	if c.observer != nil {
		c.observer.SetAvoided(id, after)
	}
}

// Tracker returns a copy of the provider's tracker, false before the first
// recorded outcome.
func (c *Curator) Tracker(id string) (ReliabilityTracker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trackers[id]
	if !ok {
		return ReliabilityTracker{}, false
	}
	return *t, true
}

// ShouldAvoid is false for providers without history.
func (c *Curator) ShouldAvoid(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shouldAvoid(id)
}

func (c *Curator) shouldAvoid(id string) bool {
	t, ok := c.trackers[id]
	return ok && t.ShouldAvoid(c.cfg)
}

func (c *Curator) Status(id string) ReliabilityStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trackers[id]
	if !ok {
		return ReliabilityTracker{}.Status(c.cfg)
	}
	return t.Status(c.cfg)
}

// ComputeQualityScore derives a fresh score without storing it.
func (c *Curator) ComputeQualityScore(id string, models []api.ModelInfo) QualityScore {
	c.mu.RLock()
	t, hasTracker := c.trackers[id]
	var tracker ReliabilityTracker
	if hasTracker {
		tracker = *t
	}
	c.mu.RUnlock()

	return c.compute(id, models, tracker, hasTracker)
}

func (c *Curator) compute(id string, models []api.ModelInfo, t ReliabilityTracker, hasTracker bool) QualityScore {
	metrics, hasMetrics := c.monitor.GetMetrics(id)
	s := Combine(
		SpeedScore(metrics, hasMetrics),
		ReliabilityComponent(t, hasTracker),
		CostEfficiencyScore(models),
		FeaturesScore(models),
	)
	s.ComputedAt = c.now()
	return s
}

// UpdateQualityScore records the provider's model list, marks it scored and
// publishes the current score to the observer.
func (c *Curator) UpdateQualityScore(id string, models []api.ModelInfo) QualityScore {
	s := c.ComputeQualityScore(id, models)

	c.mu.Lock()
	c.scoredAt[id] = s.ComputedAt
	c.models[id] = append([]api.ModelInfo(nil), models...)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.SetQuality(id, "speed", s.Speed)
		c.observer.SetQuality(id, "reliability", s.Reliability)
		c.observer.SetQuality(id, "cost_efficiency", s.CostEfficiency)
		c.observer.SetQuality(id, "features", s.Features)
		c.observer.SetQuality(id, "overall", s.Overall)
	}
	return s
}

// GetQualityScore derives the score from the recorded models and the
// current performance and reliability data. false until the provider has
// been scored once.
func (c *Curator) GetQualityScore(id string) (QualityScore, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, scored := c.score(id)
	if !scored {
		return QualityScore{}, false
	}
	return s, true
}

// Models returns the model list recorded by the last UpdateQualityScore.
func (c *Curator) Models(id string) []api.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]api.ModelInfo(nil), c.models[id]...)
}

// score computes a live score and reports whether the provider has been
// scored. Caller holds at least the shared lock.
func (c *Curator) score(id string) (QualityScore, bool) {
	_, scored := c.scoredAt[id]
	t, hasTracker := c.trackers[id]
	var tracker ReliabilityTracker
	if hasTracker {
		tracker = *t
	}
	return c.compute(id, c.models[id], tracker, hasTracker), scored
}

// SelectBestProvider filters candidates by the constraints, drops avoided
// providers, and returns the highest scoring survivor. Ties go to the
// lexically smallest id. false when nothing survives.
func (c *Curator) SelectBestProvider(candidates []string, constraints SelectionConstraints) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ranked []RankedProvider
	for _, id := range dedupe(candidates) {
		if c.shouldAvoid(id) {
			continue
		}
		s, scored := c.score(id)
		if !c.eligible(id, s, scored, constraints) {
			continue
		}
		ranked = append(ranked, RankedProvider{ProviderID: id, Score: s, Scored: scored})
	}
	if len(ranked) == 0 {
		return "", false
	}
	sortRanked(ranked)
	return ranked[0].ProviderID, true
}

func (c *Curator) eligible(id string, s QualityScore, scored bool, cons SelectionConstraints) bool {
	models := c.models[id]

	for _, capability := range cons.RequiredCapabilities {
		if !HasCapability(models, capability) {
			return false
		}
	}

	if cons.MaxCostPerRequest != nil {
		// unknown pricing is not evidence of a violation
		if cost, known := CostPerRequest(models); known && cost > *cons.MaxCostPerRequest {
			return false
		}
	}

	if cons.RequireQualityScore && !scored {
		return false
	}
	if s.Overall < cons.MinQualityScore {
		return false
	}

	metrics, hasMetrics := c.monitor.GetMetrics(id)
	if cons.RequirePerformanceData && !hasMetrics {
		return false
	}
	if cons.Thresholds != nil && hasMetrics && !monitor.IsPerformingWell(metrics, *cons.Thresholds) {
		return false
	}
	return true
}

// GetProvidersByQuality ranks every id without filtering.
func (c *Curator) GetProvidersByQuality(ids []string) []RankedProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ranked := make([]RankedProvider, 0, len(ids))
	for _, id := range dedupe(ids) {
		s, scored := c.score(id)
		ranked = append(ranked, RankedProvider{ProviderID: id, Score: s, Scored: scored})
	}
	sortRanked(ranked)
	return ranked
}

// Remove forgets everything about a provider.
func (c *Curator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trackers, id)
	delete(c.scoredAt, id)
	delete(c.models, id)
}

func sortRanked(r []RankedProvider) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score.Overall != r[j].Score.Overall {
			return r[i].Score.Overall > r[j].Score.Overall
		}
		return r[i].ProviderID < r[j].ProviderID
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
