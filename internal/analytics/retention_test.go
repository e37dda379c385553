package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetention_PrunesOldAttempts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	attempts := &memoryAttempts{logs: []model.AttemptLog{
		{ID: "old", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "fresh", CreatedAt: now.Add(-time.Hour)},
	}}

	r := NewRetention(attempts, 24*time.Hour, nil)
	r.now = func() time.Time { return now }

	n, err := r.Prune(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.Equal(t, 1, attempts.count())
	assert.Equal(t, "fresh", attempts.logs[0].ID)
}

func TestRetention_StartSchedules(t *testing.T) {
	attempts := &memoryAttempts{logs: []model.AttemptLog{{ID: "ancient", CreatedAt: time.Unix(0, 0)}}}
	r := NewRetention(attempts, time.Hour, nil)

	require.NoError(t, r.Start(context.Background(), "@hourly"))
	defer r.Stop()

	assert.Equal(t, 0, attempts.count(), "start prunes once immediately")
	next, ok := r.NextRun()
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))
}

func TestRetention_RejectsBadSchedule(t *testing.T) {
	r := NewRetention(&memoryAttempts{}, time.Hour, nil)
	assert.Error(t, r.Start(context.Background(), "every tuesday"))
}

func TestRetention_DisabledWithoutAge(t *testing.T) {
	r := NewRetention(&memoryAttempts{}, 0, nil)
	require.NoError(t, r.Start(context.Background(), "@hourly"))
	_, ok := r.NextRun()
	assert.False(t, ok)
}
