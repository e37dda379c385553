package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/stretchr/testify/assert"
)

type memoryAttempts struct {
	mu   sync.Mutex
	logs []model.AttemptLog
}

func (m *memoryAttempts) Log(ctx context.Context, a *model.AttemptLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *a)
	return nil
}

func (m *memoryAttempts) GetRecent(ctx context.Context, providerID string, limit int) ([]model.AttemptLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttemptLog
	for _, l := range m.logs {
		if l.ProviderID == providerID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryAttempts) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	return []model.DailyStats{{Date: "2025-01-01", TotalRequests: len(m.logs)}}, nil
}

func (m *memoryAttempts) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	for _, l := range m.logs {
		if !l.CreatedAt.Before(before) {
			kept = append(kept, l)
		}
	}
	n := int64(len(m.logs) - len(kept))
	m.logs = kept
	return n, nil
}

func (m *memoryAttempts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type memoryRepo struct {
	attempts *memoryAttempts
}

func (r *memoryRepo) Attempts() store.AttemptRepository     { return r.attempts }
func (r *memoryRepo) Evaluations() store.EvaluationRepository { return nil }
func (r *memoryRepo) Close() error                            { return nil }
func (r *memoryRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return fn(r)
}

func TestIngestor_FlushOnBatchSize(t *testing.T) {
	repo := &memoryRepo{attempts: &memoryAttempts{}}
	ing := NewIngestor(nil, repo, WithBatchSize(2), WithFlushInterval(time.Hour))
	ing.Start(context.Background())

	ing.Log(&model.AttemptLog{ID: "1", ProviderID: "p"})
	ing.Log(&model.AttemptLog{ID: "2", ProviderID: "p"})

	assert.Eventually(t, func() bool { return repo.attempts.count() == 2 }, time.Second, 10*time.Millisecond)
	ing.Stop()
}

func TestIngestor_StopFlushes(t *testing.T) {
	repo := &memoryRepo{attempts: &memoryAttempts{}}
	ing := NewIngestor(nil, repo, WithBatchSize(100), WithFlushInterval(time.Hour))
	ing.Start(context.Background())

	ing.Log(&model.AttemptLog{ID: "1", ProviderID: "p"})
	ing.Stop()
	assert.Equal(t, 1, repo.attempts.count())

	// logging after stop is a no-op, not a panic
	assert.NotPanics(t, func() { ing.Log(&model.AttemptLog{ID: "2"}) })
	ing.Stop()
}

func TestService_Defaults(t *testing.T) {
	repo := &memoryRepo{attempts: &memoryAttempts{}}
	svc := NewService(repo)

	stats, err := svc.GetUsageOverview(context.Background(), 0)
	assert.NoError(t, err)
	assert.Len(t, stats, 1)

	recent, err := svc.RecentAttempts(context.Background(), "p", 0)
	assert.NoError(t, err)
	assert.Empty(t, recent)
}
