// Package ollama adapts a local Ollama daemon through its OpenAI-compatible
// endpoint. Local models are free.
package ollama

import (
	"context"
	"net/http"
	"strings"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/llm/openai"
	"github.com/nulzo/model-curator/pkg/api"
)

const DefaultHost = "http://localhost:11434"

func init() {
	llm.Register(string(llm.Ollama), func(cfg config.ProviderConfig, opts llm.Options) (llm.Provider, error) {
		return NewAdapter(cfg, opts)
	})
}

type Adapter struct {
	*openai.Adapter // embeds the OpenAI adapter for chat/stream capabilities
	rootURL         string
}

func NewAdapter(cfg config.ProviderConfig, opts llm.Options) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHost
	}
	root := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	cfg.BaseURL = root + "/v1"

	base, err := openai.NewAdapter(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Adapter: base, rootURL: root}, nil
}

func (a *Adapter) Type() string {
	return string(llm.Ollama)
}

type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Details struct {
			Family   string   `json:"family"`
			Families []string `json:"families"`
		} `json:"details"`
	} `json:"models"`
}

func (a *Adapter) Models(ctx context.Context) ([]api.ModelInfo, error) {
	return a.CachedModels(ctx, a.fetch)
}

func (a *Adapter) fetch(ctx context.Context) ([]api.ModelInfo, error) {
	var resp tagsResponse
	if err := httpclient.SendRequest(ctx, a.Client(), http.MethodGet, a.rootURL+"/api/tags", nil, nil, &resp); err != nil {
		return nil, err
	}

	models := make([]api.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		caps := []api.Capability{api.CapabilityChat, api.CapabilityStreaming}
		if isMultimodal(m.Details.Family, m.Details.Families) {
			caps = append(caps, api.CapabilityVision)
		}
		if strings.Contains(m.Name, "code") {
			caps = append(caps, api.CapabilityCode)
		}
		if isReasoning(m.Name) {
			caps = append(caps, api.CapabilityReasoning)
		}
		if strings.Contains(m.Name, "embed") {
			caps = []api.Capability{api.CapabilityEmbeddings}
		}
		models = append(models, api.ModelInfo{
			ID:            m.Name,
			Name:          m.Name,
			ContextWindow: 4096,
			Capabilities:  caps,
			IsFree:        true,
		})
	}
	return models, nil
}

func isMultimodal(family string, families []string) bool {
	for _, f := range append(families, family) {
		if f == "clip" || f == "mllama" {
			return true
		}
	}
	return false
}

func isReasoning(name string) bool {
	for _, marker := range []string{"r1", "qwq", "think"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Chat moves inline <think> blocks emitted by local reasoning models into
// the message's Reasoning field.
func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	resp, err := a.Adapter.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, c := range resp.Choices {
		if c.Message == nil || c.Message.Content.Text == "" {
			continue
		}
		content, reasoning := splitThinking(c.Message.Content.Text)
		c.Message.Content = api.TextContent(content)
		c.Message.Reasoning = reasoning
	}
	return resp, nil
}

// ChatStream applies the same split to streamed deltas of the first choice.
func (a *Adapter) ChatStream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	upstream, err := a.Adapter.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan api.StreamResult)
	go func() {
		defer close(out)
		var parser thinkParser
		for res := range upstream {
			if res.Response != nil {
				for _, c := range res.Response.Choices {
					if c.Index != 0 || c.Delta == nil {
						continue
					}
					content, reasoning := parser.feed(c.Delta.Content.Text)
					if c.FinishReason != "" {
						tailC, tailR := parser.flush()
						content, reasoning = content+tailC, reasoning+tailR
					}
					c.Delta.Reasoning = reasoning
					c.Delta.Content = api.TextContent(content)
				}
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck probes the daemon's version endpoint, which needs no auth.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, error) {
	return a.CachedHealth(ctx, func(ctx context.Context) error {
		return httpclient.SendRequest(ctx, a.Client(), http.MethodGet, a.rootURL+"/api/version", nil, nil, nil)
	})
}

var _ llm.Provider = (*Adapter)(nil)
