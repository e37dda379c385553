package gateway

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/nulzo/model-curator/internal/llm"
	"go.uber.org/zap"
)

const defaultOllamaHost = "http://localhost:11434"

// Detector discovers providers from the environment: API keys for hosted
// providers and a reachable local Ollama daemon.
type Detector struct {
	Getenv func(string) string
	Client httpclient.HTTPClient
	// ProbeTimeout bounds the Ollama reachability probe.
	ProbeTimeout time.Duration
}

func NewDetector() *Detector {
	return &Detector{
		Getenv:       os.Getenv,
		Client:       &http.Client{},
		ProbeTimeout: 2 * time.Second,
	}
}

// Detect returns a provider config for each credential or daemon found.
func (d *Detector) Detect(ctx context.Context) []config.ProviderConfig {
	var found []config.ProviderConfig

	if key := d.Getenv("OPENAI_API_KEY"); key != "" {
		found = append(found, config.ProviderConfig{
			ID:      "openai",
			Type:    string(llm.OpenAI),
			Name:    "OpenAI",
			APIKey:  key,
			BaseURL: d.Getenv("OPENAI_BASE_URL"),
			Enabled: true,
		})
	}
	if key := d.Getenv("OPENROUTER_API_KEY"); key != "" {
		found = append(found, config.ProviderConfig{
			ID:      "openrouter",
			Type:    string(llm.OpenRouter),
			Name:    "OpenRouter",
			APIKey:  key,
			Enabled: true,
		})
	}

	host := strings.TrimRight(d.Getenv("OLLAMA_HOST"), "/")
	if host == "" {
		host = defaultOllamaHost
	} else if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if d.reachable(ctx, host+"/api/version") {
		found = append(found, config.ProviderConfig{
			ID:      "ollama",
			Type:    string(llm.Ollama),
			Name:    "Ollama",
			BaseURL: host,
			Enabled: true,
		})
	}
	return found
}

func (d *Detector) reachable(ctx context.Context, url string) bool {
	if d.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ProbeTimeout)
		defer cancel()
	}
	var version struct {
		Version string `json:"version"`
	}
	return httpclient.SendRequest(ctx, d.Client, http.MethodGet, url, nil, nil, &version) == nil
}

// AutoDetectProviders returns the detected provider configs whose ids are
// not registered yet. Loading them is left to the caller.
func (m *Manager) AutoDetectProviders(ctx context.Context, d *Detector) []config.ProviderConfig {
	if d == nil {
		d = NewDetector()
	}
	var fresh []config.ProviderConfig
	for _, cfg := range d.Detect(ctx) {
		if m.registry.Has(cfg.ID) {
			continue
		}
		m.log.Info("provider detected", zap.String("provider", cfg.ID), zap.String("type", cfg.Type))
		fresh = append(fresh, cfg)
	}
	return fresh
}
