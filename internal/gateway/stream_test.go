package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/llm/llmtest"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func chunk(content, finish string, usage *api.ResponseUsage) api.StreamResult {
	return api.StreamResult{Response: &api.ChatResponse{
		Object: "chat.completion.chunk",
		Choices: []api.Choice{{
			Delta:        &api.ChatMessage{Role: "assistant", Content: api.TextContent(content)},
			FinishReason: finish,
		}},
		Usage: usage,
	}}
}

func drain(t *testing.T, ch <-chan api.StreamResult) (text string, errs []error) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return text, errs
			}
			if r.Err != nil {
				errs = append(errs, r.Err)
				continue
			}
			text += r.Response.Content()
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestManager_ChatStreamRelaysAndRecordsOnce(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("ChatStream", mock.Anything, mock.MatchedBy(func(r *api.ChatRequest) bool { return r.Stream })).Return(llmtest.Stream(
		chunk("hel", "", nil),
		chunk("lo", "stop", &api.ResponseUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}),
	), nil)

	ch, err := h.m.ChatStream(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	text, errs := drain(t, ch)
	assert.Equal(t, "hello", text)
	assert.Empty(t, errs)

	metrics, ok := h.m.PerformanceMonitor().GetMetrics("primary")
	require.True(t, ok)
	assert.EqualValues(t, 1, metrics.TotalRequests)
	assert.EqualValues(t, 5, metrics.TotalTokens)

	logs := h.ingestor.all()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsStreamed)
	assert.Equal(t, "stop", logs[0].FinishReason)
}

func TestManager_ChatStreamRetriesBeforeFirstChunk(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("ChatStream", mock.Anything, mock.Anything).Return(llmtest.Stream(
		api.StreamResult{Err: llm.ProviderError("primary", "overloaded")},
	), nil).Once()
	p.On("ChatStream", mock.Anything, mock.Anything).Return(llmtest.Stream(chunk("ok", "stop", nil)), nil).Once()

	ch, err := h.m.ChatStream(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	text, errs := drain(t, ch)
	assert.Equal(t, "ok", text)
	assert.Empty(t, errs)
	p.AssertNumberOfCalls(t, "ChatStream", 2)

	metrics, _ := h.m.PerformanceMonitor().GetMetrics("primary")
	assert.EqualValues(t, 2, metrics.TotalRequests)
	assert.EqualValues(t, 1, metrics.FailedRequests)
}

func TestManager_ChatStreamMidStreamErrorIsPassedThrough(t *testing.T) {
	h := newHarness(t, nil)
	p := llmtest.New("primary")
	h.load(t, p)
	p.On("ChatStream", mock.Anything, mock.Anything).Return(llmtest.Stream(
		chunk("partial", "", nil),
		api.StreamResult{Err: llm.ProviderError("primary", "connection reset")},
	), nil).Once()

	ch, err := h.m.ChatStream(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	text, errs := drain(t, ch)
	assert.Equal(t, "partial", text)
	require.Len(t, errs, 1)
	p.AssertNumberOfCalls(t, "ChatStream", 1)

	tracker, _ := h.m.Curator().Tracker("primary")
	assert.EqualValues(t, 1, tracker.Failures)
}

func TestManager_ChatStreamFailsOver(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Retry.MaxAttempts = 1 })
	primary := llmtest.New("primary")
	backup := llmtest.New("backup")
	h.load(t, primary)
	h.load(t, backup)
	require.NoError(t, h.m.SetCurrentProvider("primary"))

	primary.On("ChatStream", mock.Anything, mock.Anything).Return(nil, llm.Timeout("primary", context.DeadlineExceeded))
	backup.On("ChatStream", mock.Anything, mock.Anything).Return(llmtest.Stream(chunk("from backup", "stop", nil)), nil)

	ch, err := h.m.ChatStream(context.Background(), chatRequest("gpt"))
	require.NoError(t, err)
	text, _ := drain(t, ch)
	assert.Equal(t, "from backup", text)
	assert.Equal(t, "backup", h.m.CurrentProvider())
}

func TestManager_ChatStreamFirstChunkTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Retry.MaxAttempts = 1
		c.AttemptTimeout = 20 * time.Millisecond
	})
	p := llmtest.New("primary")
	h.load(t, p)
	never := make(chan api.StreamResult)
	p.On("ChatStream", mock.Anything, mock.Anything).Return((<-chan api.StreamResult)(never), nil)

	_, err := h.m.ChatStream(context.Background(), chatRequest("gpt"))
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
}
