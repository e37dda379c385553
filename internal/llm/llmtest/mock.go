// Package llmtest provides a testify-backed Provider for tests.
package llmtest

import (
	"context"

	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/stretchr/testify/mock"
)

// MockProvider implements llm.Provider. Chat, ChatStream and HealthCheck go
// through testify expectations; Models returns ModelList.
type MockProvider struct {
	mock.Mock
	ProviderID   string
	ProviderType string
	ModelList    []api.ModelInfo
	ModelsErr    error
}

func New(id string, models ...api.ModelInfo) *MockProvider {
	for i := range models {
		models[i].ProviderID = id
	}
	return &MockProvider{ProviderID: id, ProviderType: "mock", ModelList: models}
}

func (m *MockProvider) ID() string   { return m.ProviderID }
func (m *MockProvider) Name() string { return m.ProviderID }
func (m *MockProvider) Type() string { return m.ProviderType }

func (m *MockProvider) Models(ctx context.Context) ([]api.ModelInfo, error) {
	if m.ModelsErr != nil {
		return nil, m.ModelsErr
	}
	return m.ModelList, nil
}

func (m *MockProvider) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ChatResponse), args.Error(1)
}

func (m *MockProvider) ChatStream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan api.StreamResult), args.Error(1)
}

func (m *MockProvider) CountTokens(content, model string) (int, error) {
	return llm.EstimateTokens(content), nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// Reply builds a completed response with the given content and usage.
func Reply(content string, promptTokens, completionTokens int) *api.ChatResponse {
	return &api.ChatResponse{
		ID:     "resp",
		Object: "chat.completion",
		Choices: []api.Choice{{
			Message:      &api.ChatMessage{Role: string(api.Assistant), Content: api.TextContent(content)},
			FinishReason: "stop",
		}},
		Usage: &api.ResponseUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// Stream returns a closed channel pre-filled with results.
func Stream(results ...api.StreamResult) <-chan api.StreamResult {
	ch := make(chan api.StreamResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return ch
}

var _ llm.Provider = (*MockProvider)(nil)
