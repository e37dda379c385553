// Package openrouter adapts OpenRouter, an OpenAI-compatible aggregator whose
// catalogue carries per-token pricing.
package openrouter

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/llm/openai"
	"github.com/nulzo/model-curator/pkg/api"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

func init() {
	llm.Register(string(llm.OpenRouter), func(cfg config.ProviderConfig, opts llm.Options) (llm.Provider, error) {
		return NewAdapter(cfg, opts)
	})
}

type Adapter struct {
	*openai.Adapter // chat, streaming, token counting and health
}

func NewAdapter(cfg config.ProviderConfig, opts llm.Options) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Config == nil {
		cfg.Config = map[string]string{}
	}
	base, err := openai.NewAdapter(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Adapter: base}, nil
}

func (a *Adapter) Type() string {
	return string(llm.OpenRouter)
}

type catalogue struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
		Pricing       struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
		SupportedParams []string `json:"supported_parameters"`
		Architecture    struct {
			Modality string `json:"modality"`
		} `json:"architecture"`
	} `json:"data"`
}

// Models merges the live catalogue with any configured entries, which win
// on id collisions.
func (a *Adapter) Models(ctx context.Context) ([]api.ModelInfo, error) {
	return a.CachedModels(ctx, a.fetch)
}

func (a *Adapter) fetch(ctx context.Context) ([]api.ModelInfo, error) {
	cfg := a.Config()
	var resp catalogue
	if err := httpclient.SendRequest(ctx, a.Client(), http.MethodGet, cfg.BaseURL+"/models", a.Headers(nil), nil, &resp); err != nil {
		return nil, err
	}

	configured := make(map[string]api.ModelInfo, len(cfg.Models))
	for _, m := range cfg.Models {
		configured[m.ID] = m
	}

	models := make([]api.ModelInfo, 0, len(resp.Data)+len(cfg.Models))
	for _, m := range resp.Data {
		if c, ok := configured[m.ID]; ok {
			models = append(models, c)
			delete(configured, m.ID)
			continue
		}
		info := api.ModelInfo{
			ID:            m.ID,
			Name:          m.Name,
			ContextWindow: m.ContextLength,
			Capabilities:  capabilities(m.Architecture.Modality, m.SupportedParams),
		}
		prompt, okP := perThousand(m.Pricing.Prompt)
		completion, okC := perThousand(m.Pricing.Completion)
		switch {
		case strings.HasSuffix(m.ID, ":free") || (okP && okC && prompt == 0 && completion == 0):
			info.IsFree = true
		case okP && okC:
			info.Pricing = &api.ModelPricing{InputPer1K: prompt, OutputPer1K: completion}
		}
		models = append(models, info)
	}
	for _, m := range cfg.Models {
		if _, left := configured[m.ID]; left {
			models = append(models, m)
		}
	}
	return models, nil
}

// perThousand converts OpenRouter's per-token USD strings.
func perThousand(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * 1000, true
}

func capabilities(modality string, params []string) []api.Capability {
	caps := []api.Capability{api.CapabilityChat, api.CapabilityStreaming}
	if input, _, ok := strings.Cut(modality, "->"); ok && strings.Contains(input, "image") {
		caps = append(caps, api.CapabilityVision)
	}
	for _, p := range params {
		switch p {
		case "tools":
			caps = append(caps, api.CapabilityFunctionCalling)
		case "reasoning", "include_reasoning":
			caps = appendOnce(caps, api.CapabilityReasoning)
		}
	}
	return caps
}

func appendOnce(caps []api.Capability, c api.Capability) []api.Capability {
	for _, have := range caps {
		if have == c {
			return caps
		}
	}
	return append(caps, c)
}

var _ llm.Provider = (*Adapter)(nil)
