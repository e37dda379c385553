// Package openai is the reference adapter for OpenAI-compatible chat backends.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/pkg/api"
)

const DefaultBaseURL = "https://api.openai.com/v1"

func init() {
	llm.Register(string(llm.OpenAI), func(cfg config.ProviderConfig, opts llm.Options) (llm.Provider, error) {
		return NewAdapter(cfg, opts)
	})
}

type Adapter struct {
	config config.ProviderConfig
	opts   llm.Options
}

func NewAdapter(cfg config.ProviderConfig, opts llm.Options) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, errors.New("openai: provider id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		config: cfg,
		opts:   opts.WithDefaults(cfg.Timeout),
	}, nil
}

func (a *Adapter) ID() string {
	return a.config.ID
}

func (a *Adapter) Name() string {
	return a.config.DisplayName()
}

func (a *Adapter) Type() string {
	return string(llm.OpenAI)
}

// Config exposes the resolved configuration to embedding adapters.
func (a *Adapter) Config() config.ProviderConfig {
	return a.config
}

// Client exposes the shared HTTP client to embedding adapters.
func (a *Adapter) Client() httpclient.HTTPClient {
	return a.opts.HTTPClient
}

func (a *Adapter) headers() map[string]string {
	headers := map[string]string{}
	if a.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.config.APIKey
	}
	if org, ok := a.config.Config["organization"]; ok {
		headers["OpenAI-Organization"] = org
	}
	return headers
}

// Headers returns the auth headers plus extra.
func (a *Adapter) Headers(extra map[string]string) map[string]string {
	h := a.headers()
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// Models returns the configured model list. The OpenAI API reports neither
// pricing nor capabilities, so configuration is the source of truth.
func (a *Adapter) Models(ctx context.Context) ([]api.ModelInfo, error) {
	return a.stamp(a.config.Models), nil
}

func (a *Adapter) stamp(models []api.ModelInfo) []api.ModelInfo {
	out := make([]api.ModelInfo, len(models))
	for i, m := range models {
		m.ProviderID = a.config.ID
		if m.Name == "" {
			m.Name = m.ID
		}
		if len(m.Capabilities) == 0 {
			m.Capabilities = []api.Capability{api.CapabilityChat, api.CapabilityStreaming}
		}
		out[i] = m
	}
	return out
}

// CachedModels serves fetch through the models TTL cache. Concurrent callers
// may both refresh an expired entry; the cache swaps the value whole.
func (a *Adapter) CachedModels(ctx context.Context, fetch func(context.Context) ([]api.ModelInfo, error)) ([]api.ModelInfo, error) {
	key := "models:" + a.config.ID

	var cached []api.ModelInfo
	if err := a.opts.Cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	models, err := fetch(ctx)
	if err != nil {
		return nil, llm.Classify(a.config.ID, err)
	}
	models = a.stamp(models)

	_ = a.opts.Cache.Set(ctx, key, models, a.opts.ModelsTTL)
	return models, nil
}

// InvalidateModels forces the next Models call to refetch.
func (a *Adapter) InvalidateModels(ctx context.Context) error {
	return a.opts.Cache.Delete(ctx, "models:"+a.config.ID)
}

func (a *Adapter) upstreamRequest(req *api.ChatRequest, stream bool) *api.ChatRequest {
	out := req.Clone()
	out.Stream = stream
	out.StreamOptions = nil
	if stream {
		out.StreamOptions = &api.StreamOptions{IncludeUsage: true}
	}
	return out
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	var resp api.ChatResponse
	url := a.config.BaseURL + "/chat/completions"

	if err := httpclient.SendRequest(ctx, a.opts.HTTPClient, http.MethodPost, url, a.headers(), a.upstreamRequest(req, false), &resp); err != nil {
		return nil, llm.Classify(a.config.ID, err)
	}
	if resp.Error != nil {
		return nil, llm.ProviderError(a.config.ID, resp.Error.Message)
	}

	resp.Provider = a.config.ID
	if resp.Usage == nil {
		resp.Usage = a.estimateUsage(req, resp.Content())
	}
	return &resp, nil
}

func (a *Adapter) estimateUsage(req *api.ChatRequest, completion string) *api.ResponseUsage {
	p := llm.EstimateTokens(req.PromptText())
	c := llm.EstimateTokens(completion)
	return &api.ResponseUsage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

func (a *Adapter) ChatStream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	ch := make(chan api.StreamResult)
	url := a.config.BaseURL + "/chat/completions"
	body := a.upstreamRequest(req, true)
	headers := a.headers()

	go func() {
		defer close(ch)

		send := func(r api.StreamResult) bool {
			select {
			case ch <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := httpclient.StreamRequest(ctx, a.opts.HTTPClient, http.MethodPost, url, headers, body, func(line string) error {
			// SSE format: data: {...}
			if !strings.HasPrefix(line, "data:") {
				return nil
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return nil
			}

			var chunk api.ChatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if chunk.Error != nil {
				return llm.ProviderError(a.config.ID, chunk.Error.Message)
			}
			chunk.Provider = a.config.ID
			if !send(api.StreamResult{Response: &chunk}) {
				return ctx.Err()
			}
			return nil
		})

		if err != nil {
			send(api.StreamResult{Err: llm.Classify(a.config.ID, err)})
		}
	}()

	return ch, nil
}

func (a *Adapter) CountTokens(content, model string) (int, error) {
	return llm.EstimateTokens(content), nil
}

type healthEntry struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthCheck lists models as a cheap authenticated probe.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, error) {
	return a.CachedHealth(ctx, func(ctx context.Context) error {
		return httpclient.SendRequest(ctx, a.opts.HTTPClient, http.MethodGet, a.config.BaseURL+"/models", a.headers(), nil, nil)
	})
}

// CachedHealth runs probe at most once per health TTL.
func (a *Adapter) CachedHealth(ctx context.Context, probe func(context.Context) error) (bool, error) {
	key := "health:" + a.config.ID

	var entry healthEntry
	if err := a.opts.Cache.Get(ctx, key, &entry); err == nil {
		if entry.Healthy {
			return true, nil
		}
		return false, llm.ProviderError(a.config.ID, entry.Message)
	}

	err := probe(ctx)
	if err != nil {
		classified := llm.Classify(a.config.ID, err)
		_ = a.opts.Cache.Set(ctx, key, healthEntry{Message: classified.Message}, a.opts.HealthTTL)
		return false, classified
	}
	_ = a.opts.Cache.Set(ctx, key, healthEntry{Healthy: true}, a.opts.HealthTTL)
	return true, nil
}

var _ llm.Provider = (*Adapter)(nil)

// String is used in log fields.
func (a *Adapter) String() string {
	return fmt.Sprintf("%s(%s)", a.Type(), a.config.ID)
}
