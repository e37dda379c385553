package llm

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/nulzo/model-curator/internal/store/cache"
)

// Options carries shared collaborators handed to every adapter.
type Options struct {
	// Cache backs the model-list and health-probe TTL caches. Adapters fall
	// back to a private in-memory cache when nil.
	Cache      cache.CacheService
	HTTPClient httpclient.HTTPClient
	ModelsTTL  time.Duration
	HealthTTL  time.Duration
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults(timeout time.Duration) Options {
	if o.Cache == nil {
		o.Cache = cache.NewMemoryCache()
	}
	if o.HTTPClient == nil {
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		o.HTTPClient = &http.Client{Timeout: timeout}
	}
	if o.ModelsTTL <= 0 {
		o.ModelsTTL = 10 * time.Minute
	}
	if o.HealthTTL <= 0 {
		o.HealthTTL = 30 * time.Second
	}
	return o
}

type Factory func(cfg config.ProviderConfig, opts Options) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an adapter constructor available under providerType.
// Adapters call it from init.
func Register(providerType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[providerType]; exists {
		panic(fmt.Sprintf("provider factory %s already registered", providerType))
	}
	factories[providerType] = f
}

func Get(providerType string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[providerType]
	if !ok {
		return nil, fmt.Errorf("provider factory not found for type: %s", providerType)
	}
	return f, nil
}

// New builds a provider for cfg through the registered factory.
func New(cfg config.ProviderConfig, opts Options) (Provider, error) {
	f, err := Get(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("factory lookup failed for type %s: %w", cfg.Type, err)
	}
	return f(cfg, opts.WithDefaults(cfg.Timeout))
}

// Types lists registered adapter types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	return out
}
