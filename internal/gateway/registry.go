package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/pkg/api"
)

var (
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrProviderNotFound  = errors.New("provider not found")
)

// Registry is the in-memory catalogue of providers keyed by id. It is
// thread-safe.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]llm.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]llm.Provider),
	}
}

func (r *Registry) Register(p llm.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.ID())
	}
	r.providers[p.ID()] = p
	return nil
}

func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	delete(r.providers, id)
	return nil
}

func (r *Registry) Get(id string) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// GetByName matches the display name; ties resolve to the smallest id.
func (r *Registry) GetByName(name string) (llm.Provider, error) {
	for _, p := range r.ListAll() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: name %s", ErrProviderNotFound, name)
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[id]
	return ok
}

// ListAll returns providers sorted by id.
func (r *Registry) ListAll() []llm.Provider {
	r.mu.RLock()
	out := make([]llm.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) ListProviderIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ListModels fetches one provider's models. The lookup holds the lock; the
// fetch does not.
func (r *Registry) ListModels(ctx context.Context, id string) ([]api.ModelInfo, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return p.Models(ctx)
}

// ListAllModels concatenates every provider's models. Providers whose
// listing fails are skipped and their errors joined into the returned error.
func (r *Registry) ListAllModels(ctx context.Context) ([]api.ModelInfo, error) {
	var (
		all  []api.ModelInfo
		errs []error
	)
	for _, p := range r.ListAll() {
		models, err := p.Models(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
			continue
		}
		all = append(all, models...)
	}
	return all, errors.Join(errs...)
}
