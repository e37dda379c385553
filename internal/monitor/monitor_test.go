package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) RecordAttempt(provider string, success bool, latencySeconds float64, tokens int) {
	m.Called(provider, success, latencySeconds, tokens)
}

func TestRecordRequest(t *testing.T) {
	m := New(nil)

	m.RecordRequest("p1", true, 100*time.Millisecond, 10)
	m.RecordRequest("p1", false, 300*time.Millisecond, 0)

	got, ok := m.GetMetrics("p1")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.TotalRequests)
	assert.Equal(t, int64(1), got.SuccessfulRequests)
	assert.Equal(t, int64(1), got.FailedRequests)
	assert.Equal(t, 200*time.Millisecond, got.AverageLatency)
	assert.Equal(t, int64(10), got.TotalTokens)
	assert.InDelta(t, 0.5, got.ErrorRate(), 1e-9)
	assert.False(t, got.LastRequestAt.IsZero())

	_, ok = m.GetMetrics("unknown")
	assert.False(t, ok)
}

func TestRecordRequest_Observer(t *testing.T) {
	obs := new(mockObserver)
	obs.On("RecordAttempt", "p1", true, 0.5, 7).Once()

	New(obs).RecordRequest("p1", true, 500*time.Millisecond, 7)
	obs.AssertExpectations(t)
}

func TestRecordRequest_Concurrent(t *testing.T) {
	m := New(nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.RecordRequest("p1", i%3 != 0, time.Millisecond, 1)
			m.RecordRequest("p2", true, time.Millisecond, 1)
		}(i)
	}
	wg.Wait()

	p1, _ := m.GetMetrics("p1")
	assert.Equal(t, int64(n), p1.TotalRequests)
	assert.Equal(t, p1.TotalRequests, p1.SuccessfulRequests+p1.FailedRequests)

	p2, _ := m.GetMetrics("p2")
	assert.Equal(t, int64(0), p2.FailedRequests, "providers are isolated")
}

func TestIsPerformingWell(t *testing.T) {
	th := Thresholds{MaxAverageLatency: time.Second, MaxErrorRate: 0.1}

	assert.False(t, IsPerformingWell(Metrics{}, th), "no data is not a pass")

	good := Metrics{TotalRequests: 10, SuccessfulRequests: 10, AverageLatency: 200 * time.Millisecond}
	assert.True(t, IsPerformingWell(good, th))

	slow := good
	slow.AverageLatency = 2 * time.Second
	assert.False(t, IsPerformingWell(slow, th))

	flaky := good
	flaky.SuccessfulRequests, flaky.FailedRequests = 8, 2
	assert.False(t, IsPerformingWell(flaky, th))

	th.MinThroughput = 100
	good.FirstRequestAt = time.Unix(0, 0)
	good.LastRequestAt = time.Unix(10, 0)
	assert.False(t, IsPerformingWell(good, th))
}

func TestReset(t *testing.T) {
	m := New(nil)
	m.RecordRequest("p1", true, time.Millisecond, 0)
	m.Reset("p1")
	_, ok := m.GetMetrics("p1")
	assert.False(t, ok)
	assert.Empty(t, m.All())
}
