package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/llm/llmtest"
	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingIngestor struct {
	mu   sync.Mutex
	logs []*model.AttemptLog
}

func (r *recordingIngestor) Log(a *model.AttemptLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, a)
}

func (r *recordingIngestor) Start(context.Context) {}
func (r *recordingIngestor) Stop()                 {}

func (r *recordingIngestor) all() []*model.AttemptLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.AttemptLog(nil), r.logs...)
}

type harness struct {
	m        *Manager
	ingestor *recordingIngestor

	mu     sync.Mutex
	delays []time.Duration
}

func (h *harness) slept() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.delays...)
}

func newHarness(t *testing.T, tweak func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Retry.Jitter = 0
	cfg.QualityRefreshInterval = 0
	cfg.HealthCheckInterval = 0
	if tweak != nil {
		tweak(&cfg)
	}
	h := &harness{ingestor: &recordingIngestor{}}
	h.m = NewManager(cfg, WithIngestor(h.ingestor))
	h.m.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) load(t *testing.T, p *llmtest.MockProvider) {
	t.Helper()
	p.On("HealthCheck", mock.Anything).Return(true, nil).Maybe()
	require.NoError(t, h.m.LoadProvider(context.Background(), p))
	st, _, ok := h.m.State(p.ID())
	require.True(t, ok)
	require.Equal(t, StateConnected, st)
}

func chatRequest(model string) *api.ChatRequest {
	return &api.ChatRequest{
		Model:    model,
		Messages: []api.ChatMessage{{Role: "user", Content: api.TextContent("hello")}},
	}
}

func TestManager_ChatRecordsEveryAttempt(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("hi", 10, 5), nil)

	for i := 0; i < 5; i++ {
		resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
		require.NoError(t, err)
		assert.Equal(t, "primary", resp.Provider)
	}

	metrics, ok := h.m.PerformanceMonitor().GetMetrics("primary")
	require.True(t, ok)
	assert.EqualValues(t, 5, metrics.TotalRequests)
	assert.EqualValues(t, 5, metrics.SuccessfulRequests)
	assert.EqualValues(t, 75, metrics.TotalTokens)

	tracker, ok := h.m.Curator().Tracker("primary")
	require.True(t, ok)
	assert.EqualValues(t, 5, tracker.TotalRequests)
	assert.Equal(t, "primary", h.m.CurrentProvider())
	assert.Len(t, h.ingestor.all(), 5)
}

func TestManager_RetriesTransientFailure(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("primary", "boom")).Once()
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("hi", 1, 1), nil).Once()

	resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content())
	p.AssertNumberOfCalls(t, "Chat", 2)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, h.slept())

	metrics, _ := h.m.PerformanceMonitor().GetMetrics("primary")
	assert.EqualValues(t, 2, metrics.TotalRequests)
	assert.EqualValues(t, 1, metrics.FailedRequests)

	logs := h.ingestor.all()
	require.Len(t, logs, 2)
	assert.Equal(t, logs[0].RequestID, logs[1].RequestID)
	assert.Equal(t, 1, logs[0].Attempt)
	assert.Equal(t, 2, logs[1].Attempt)
	assert.Equal(t, string(llm.KindProvider), logs[0].ErrorKind)
}

func TestManager_NonRetryableErrorIsFinal(t *testing.T) {
	h := newHarness(t, nil)
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))
	primary.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.AuthError("primary", "bad key"))

	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.Error(t, err)
	assert.Equal(t, llm.KindAuth, llm.KindOf(err))
	primary.AssertNumberOfCalls(t, "Chat", 1)
	backup.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	assert.Empty(t, h.slept())
}

func TestManager_FailsOverAfterRetriesExhausted(t *testing.T) {
	h := newHarness(t, nil)
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	primary.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("primary", "boom"))
	backup.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("from backup", 1, 1), nil)

	resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	primary.AssertNumberOfCalls(t, "Chat", 3)
	backup.AssertNumberOfCalls(t, "Chat", 1)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, h.slept())

	// auto switch moves the session to the provider that answered
	assert.Equal(t, "backup", h.m.CurrentProvider())

	st, lastErr, _ := h.m.State("primary")
	assert.Equal(t, StateError, st)
	assert.Contains(t, lastErr, "boom")

	logs := h.ingestor.all()
	require.Len(t, logs, 4)
	assert.True(t, logs[3].IsFailover)
	assert.Equal(t, "backup", logs[3].ProviderID)
}

func TestManager_FailoverErrorIsSurfaced(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Retry.MaxAttempts = 1 })
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	primary.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("primary", "boom"))
	backup.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.Timeout("backup", context.DeadlineExceeded))

	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
	backup.AssertNumberOfCalls(t, "Chat", 1)
	assert.Equal(t, "primary", h.m.CurrentProvider())
}

func TestManager_FailoverWithoutAutoSwitchKeepsCurrent(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Retry.MaxAttempts = 1
		c.Curation.AutoSwitch = false
	})
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	primary.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("primary", "boom"))
	backup.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil)

	resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	assert.Equal(t, "primary", h.m.CurrentProvider())
}

func TestManager_HonorsRateLimitCooldown(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.RateLimited("primary", 2*time.Second)).Once()
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil).Once()

	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.slept())
}

func TestManager_AttemptTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Retry.MaxAttempts = 1
		c.AttemptTimeout = 20 * time.Millisecond
	})
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded)

	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))

	tracker, _ := h.m.Curator().Tracker("primary")
	assert.EqualValues(t, 1, tracker.ConsecutiveFailures)
}

func TestManager_PinnedModelRoutesToProvider(t *testing.T) {
	h := newHarness(t, nil)
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	backup.On("Chat", mock.Anything, mock.MatchedBy(func(r *api.ChatRequest) bool {
		return r.Model == "vendor/model-x"
	})).Return(llmtest.Reply("ok", 1, 1), nil)

	req := chatRequest("backup/vendor/model-x")
	resp, err := h.m.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	assert.Equal(t, "backup/vendor/model-x", req.Model, "caller request must not be mutated")
	primary.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	assert.Equal(t, "primary", h.m.CurrentProvider())
}

func TestManager_PinnedRequestsDoNotFailOver(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Retry.MaxAttempts = 1 })
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)

	backup.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("backup", "boom"))

	_, err := h.m.Chat(context.Background(), chatRequest("backup/model"))
	require.Error(t, err)
	primary.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestManager_AvoidedCurrentProviderIsBypassed(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Curation.MaxConsecutiveFailures = 2 })
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	h.m.Curator().RecordFailure("primary")
	h.m.Curator().RecordFailure("primary")
	require.True(t, h.m.ShouldAvoidProvider("primary"))

	backup.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil)

	resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	primary.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	assert.Equal(t, "backup", h.m.CurrentProvider())
}

func TestManager_SelectsBestProviderWithoutCurrent(t *testing.T) {
	h := newHarness(t, nil)
	free := llmtest.New("free", api.ModelInfo{ID: "gpt", Capabilities: []api.Capability{api.CapabilityChat, api.CapabilityStreaming}, IsFree: true})
	pricey := llmtest.New("pricey", api.ModelInfo{ID: "gpt", Pricing: &api.ModelPricing{InputPer1K: 1, OutputPer1K: 1}})
	h.load(t, free)
	h.load(t, pricey)
	require.NoError(t, h.m.UpdateProviderQualityScores(context.Background()))

	free.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil)

	resp, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	assert.Equal(t, "free", resp.Provider)
	assert.Equal(t, "free", h.m.CurrentProvider())
}

func TestManager_NoProviders(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestManager_StoppedProviderIsNotDispatched(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	require.NoError(t, h.m.SetCurrentProvider("primary"))
	require.NoError(t, h.m.StopProvider("primary"))
	assert.Empty(t, h.m.CurrentProvider())

	_, err := h.m.Chat(context.Background(), chatRequest("primary/gpt"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = h.m.Chat(context.Background(), chatRequest("gpt"))
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	p.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestManager_CallerCancellationIsNotAFailure(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	p.On("Chat", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	_, err := h.m.Chat(ctx, chatRequest("gpt"))
	assert.ErrorIs(t, err, context.Canceled)
	_, recorded := h.m.Curator().Tracker("primary")
	assert.False(t, recorded)
}

func TestManager_ConcurrentChats(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	reply := llmtest.Reply("ok", 1, 1)
	reply.Provider = "primary"
	p.On("Chat", mock.Anything, mock.Anything).Return(reply, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	metrics, _ := h.m.PerformanceMonitor().GetMetrics("primary")
	assert.EqualValues(t, 50, metrics.TotalRequests)
	tracker, _ := h.m.Curator().Tracker("primary")
	assert.EqualValues(t, 50, tracker.TotalRequests)
}

func TestManager_ChatWithProviderRecords(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("primary", "boom")).Once()

	_, err := h.m.ChatWithProvider(context.Background(), p, chatRequest("gpt"))
	require.Error(t, err)
	p.AssertNumberOfCalls(t, "Chat", 1)

	metrics, _ := h.m.PerformanceMonitor().GetMetrics("primary")
	assert.EqualValues(t, 1, metrics.FailedRequests)
}

func TestManager_EmptyResponseIsAProviderError(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, nil).Once()

	resp, err := h.m.ChatWithProvider(context.Background(), p, chatRequest("gpt"))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, llm.KindProvider, llm.KindOf(err))

	metrics, _ := h.m.PerformanceMonitor().GetMetrics("primary")
	assert.EqualValues(t, 1, metrics.FailedRequests)
}

func TestManager_LoadProviderRecordsModels(t *testing.T) {
	h := newHarness(t, nil)
	chat := llmtest.New("chat", api.ModelInfo{ID: "gpt", Capabilities: []api.Capability{api.CapabilityChat}})
	embed := llmtest.New("embed", api.ModelInfo{ID: "embedder", Capabilities: []api.Capability{api.CapabilityEmbeddings}})
	h.load(t, chat)
	h.load(t, embed)

	_, scored := h.m.Curator().GetQualityScore("chat")
	assert.True(t, scored)

	id, ok := h.m.SelectBestProvider([]string{"chat", "embed"}, curation.SelectionConstraints{
		RequiredCapabilities: []api.Capability{api.CapabilityChat},
	})
	require.True(t, ok)
	assert.Equal(t, "chat", id)

	embed.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil)
	resp, err := h.m.Chat(context.Background(), chatRequest("embedder"))
	require.NoError(t, err)
	assert.Equal(t, "embed", resp.Provider)
	chat.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestManager_HealthCheckUpdatesState(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	p.On("HealthCheck", mock.Anything).Return(false, errors.New("connection refused")).Once()
	p.On("HealthCheck", mock.Anything).Return(true, nil)
	require.NoError(t, h.m.LoadProvider(context.Background(), p))

	st, lastErr, _ := h.m.State("primary")
	assert.Equal(t, StateError, st)
	assert.Contains(t, lastErr, "connection refused")
	tracker, _ := h.m.Curator().Tracker("primary")
	assert.EqualValues(t, 1, tracker.ConsecutiveFailures)

	ok, err := h.m.Reconnect(context.Background(), "primary")
	require.NoError(t, err)
	assert.True(t, ok)
	st, lastErr, _ = h.m.State("primary")
	assert.Equal(t, StateConnected, st)
	assert.Empty(t, lastErr)
}

func TestManager_HealthProbeLetsAvoidedProviderRecover(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Curation.MaxConsecutiveFailures = 1 })
	p := llmtest.New("primary")
	h.load(t, p)
	h.m.Curator().RecordFailure("primary")
	require.True(t, h.m.ShouldAvoidProvider("primary"))

	_, err := h.m.HealthCheck(context.Background(), "primary")
	require.NoError(t, err)
	assert.False(t, h.m.ShouldAvoidProvider("primary"))
}

func TestManager_UpdateProviderState(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.m.RegisterProvider(llmtest.New("primary")))

	err := h.m.UpdateProviderState("primary", StateConnected, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.m.UpdateProviderState("primary", StateConnecting, ""))
	require.NoError(t, h.m.UpdateProviderState("primary", StateConnected, ""))

	err = h.m.UpdateProviderState("missing", StateConnected, "")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestManager_UpdateProviderQualityScores(t *testing.T) {
	h := newHarness(t, nil)
	good := llmtest.New("good", api.ModelInfo{ID: "m", IsFree: true})
	broken := llmtest.New("broken")
	broken.ModelsErr = errors.New("listing failed")
	require.NoError(t, h.m.RegisterProvider(good))
	require.NoError(t, h.m.RegisterProvider(broken))

	err := h.m.UpdateProviderQualityScores(context.Background())
	require.Error(t, err)

	s, ok := h.m.Curator().GetQualityScore("good")
	require.True(t, ok)
	assert.Equal(t, 1.0, s.CostEfficiency)

	_, ok = h.m.Curator().GetQualityScore("broken")
	assert.True(t, ok, "a failed listing still refreshes the score")

	ranked := h.m.RankProviders()
	require.Len(t, ranked, 2)
	assert.Equal(t, "good", ranked[0].ProviderID)
}

func TestManager_GetFailoverProviderOnlyConnected(t *testing.T) {
	h := newHarness(t, nil)
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	require.NoError(t, h.m.RegisterProvider(backup))

	_, ok := h.m.GetFailoverProvider("primary")
	assert.False(t, ok)

	h.load(t, llmtest.New("third"))
	got, ok := h.m.GetFailoverProvider("primary")
	require.True(t, ok)
	assert.Equal(t, "third", got)
}

func TestManager_ProviderStatus(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("ok", 1, 1), nil)
	_, err := h.m.Chat(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)

	s, err := h.m.GetProviderStatus("primary")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, s.State)
	assert.True(t, s.Current)
	assert.False(t, s.ShouldAvoid)
	require.NotNil(t, s.Metrics)
	assert.EqualValues(t, 1, s.Metrics.TotalRequests)
	assert.True(t, s.PerformingWell)

	_, err = h.m.GetProviderStatus("missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Len(t, h.m.ListProviderStatus(), 1)
}

func TestManager_UnregisterForgetsHistory(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	h.m.Curator().RecordFailure("primary")

	require.NoError(t, h.m.UnregisterProvider("primary"))
	_, ok := h.m.Curator().Tracker("primary")
	assert.False(t, ok)
	assert.Empty(t, h.m.CurrentProvider())

	h.load(t, llmtest.New("primary"))
	_, ok = h.m.Curator().Tracker("primary")
	assert.False(t, ok)
}

func TestManager_StartStop(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.QualityRefreshInterval = 5 * time.Millisecond
		c.HealthCheckInterval = 5 * time.Millisecond
	})
	h.load(t, llmtest.New("primary", api.ModelInfo{ID: "m"}))

	h.m.Start(context.Background())
	_, ok := h.m.Curator().GetQualityScore("primary")
	assert.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	h.m.Stop()
	h.m.Stop()
}
