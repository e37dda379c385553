package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/monitor"
	"go.uber.org/zap"
)

// ProviderStatus is a point-in-time view of one provider.
type ProviderStatus struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	Type           string                       `json:"type"`
	State          ConnectionState              `json:"state"`
	LastError      string                       `json:"last_error,omitempty"`
	StateChangedAt time.Time                    `json:"state_changed_at"`
	Current        bool                         `json:"current"`
	ShouldAvoid    bool                         `json:"should_avoid"`
	PerformingWell bool                         `json:"performing_well"`
	Reliability    curation.ReliabilityStatus   `json:"reliability"`
	Tracker        *curation.ReliabilityTracker `json:"tracker,omitempty"`
	Metrics        *monitor.Metrics             `json:"metrics,omitempty"`
	Quality        *curation.QualityScore       `json:"quality,omitempty"`
}

func (m *Manager) GetProviderStatus(id string) (ProviderStatus, error) {
	p, err := m.registry.Get(id)
	if err != nil {
		return ProviderStatus{}, err
	}

	m.mu.RLock()
	st := providerState{}
	if s, ok := m.states[id]; ok {
		st = *s
	}
	current := m.current == id
	m.mu.RUnlock()

	status := ProviderStatus{
		ID:             id,
		Name:           p.Name(),
		Type:           p.Type(),
		State:          st.state,
		LastError:      st.lastError,
		StateChangedAt: st.changedAt,
		Current:        current,
		ShouldAvoid:    m.ShouldAvoidProvider(id),
		Reliability:    m.curator.Status(id),
	}
	if t, ok := m.curator.Tracker(id); ok {
		status.Tracker = &t
	}
	if metrics, ok := m.monitor.GetMetrics(id); ok {
		status.Metrics = &metrics
		status.PerformingWell = monitor.IsPerformingWell(metrics, m.cfg.Thresholds)
	}
	if q, ok := m.curator.GetQualityScore(id); ok {
		status.Quality = &q
	}
	return status, nil
}

// ListProviderStatus returns every provider's status sorted by id.
func (m *Manager) ListProviderStatus() []ProviderStatus {
	ids := m.registry.ListProviderIDs()
	out := make([]ProviderStatus, 0, len(ids))
	for _, id := range ids {
		s, err := m.GetProviderStatus(id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RankProviders orders every registered provider by quality.
func (m *Manager) RankProviders() []curation.RankedProvider {
	return m.curator.GetProvidersByQuality(m.registry.ListProviderIDs())
}

// HealthCheck probes id and moves it to connected or error. A failed probe
// counts as a failure for the curator; a successful one counts as a success
// only while the provider is avoided, so avoided providers can recover.
func (m *Manager) HealthCheck(ctx context.Context, id string) (bool, error) {
	p, err := m.registry.Get(id)
	if err != nil {
		return false, err
	}
	if st, _, _ := m.State(id); st == StateDisconnected {
		if err := m.UpdateProviderState(id, StateConnecting, ""); err != nil {
			return false, err
		}
	}

	hctx := ctx
	if m.cfg.HealthTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.cfg.HealthTimeout)
		defer cancel()
	}

	healthy, err := p.HealthCheck(hctx)
	if err == nil && !healthy {
		err = llm.ProviderError(id, "health check reported unhealthy")
	}
	if err != nil {
		classified := llm.Classify(id, err)
		m.curator.RecordFailure(id)
		m.metrics.RecordError(id, string(classified.Kind))
		if uerr := m.UpdateProviderState(id, StateError, classified.Error()); uerr != nil {
			m.log.Debug("state not updated", zap.Error(uerr))
		}
		return false, classified
	}

	if m.ShouldAvoidProvider(id) {
		m.curator.RecordSuccess(id)
	}
	if err := m.UpdateProviderState(id, StateConnected, ""); err != nil {
		return true, err
	}
	return true, nil
}

// HealthCheckAll probes every provider that has not been stopped.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, id := range m.ids(ConnectionState.Dispatchable) {
		_, err := m.HealthCheck(ctx, id)
		results[id] = err
	}
	return results
}

// UpdateProviderQualityScores refreshes every provider's score. Model lists
// are fetched without holding any lock; a provider whose listing fails is
// rescored from its previous list.
func (m *Manager) UpdateProviderQualityScores(ctx context.Context) error {
	var errs []error
	for _, p := range m.registry.ListAll() {
		models, err := p.Models(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
			m.log.Warn("model listing failed", zap.String("provider", p.ID()), zap.Error(err))
			models = m.curator.Models(p.ID())
		}
		s := m.curator.UpdateQualityScore(p.ID(), models)
		m.metrics.SetAvoided(p.ID(), m.ShouldAvoidProvider(p.ID()))
		m.log.Debug("quality score updated",
			zap.String("provider", p.ID()),
			zap.Float64("overall", s.Overall),
		)
	}
	return errors.Join(errs...)
}

// Start runs the quality refresh and health check loops until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	if err := m.UpdateProviderQualityScores(ctx); err != nil {
		m.log.Warn("initial quality refresh incomplete", zap.Error(err))
	}

	m.every(ctx, m.cfg.QualityRefreshInterval, func(ctx context.Context) {
		if err := m.UpdateProviderQualityScores(ctx); err != nil {
			m.log.Warn("quality refresh incomplete", zap.Error(err))
		}
	})
	m.every(ctx, m.cfg.HealthCheckInterval, func(ctx context.Context) {
		for id, err := range m.HealthCheckAll(ctx) {
			if err != nil {
				m.log.Warn("health check failed", zap.String("provider", id), zap.Error(err))
			}
		}
	})
}

func (m *Manager) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop ends the background loops and waits for them.
func (m *Manager) Stop() {
	m.loopMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.loopMu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}
