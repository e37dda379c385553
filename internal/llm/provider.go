package llm

import (
	"context"

	"github.com/nulzo/model-curator/pkg/api"
)

type ProviderType string

const (
	OpenAI     ProviderType = "openai"
	OpenRouter ProviderType = "openrouter"
	Ollama     ProviderType = "ollama"
)

// Provider is the capability surface every backend adapter implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// ID is the unique registry key.
	ID() string
	Name() string
	Type() string

	Models(ctx context.Context) ([]api.ModelInfo, error)
	Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)
	// ChatStream returns a channel closed by the adapter when the stream ends.
	// A terminal error is delivered as a StreamResult with Err set.
	ChatStream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error)
	CountTokens(content, model string) (int, error)
	HealthCheck(ctx context.Context) (bool, error)
}
