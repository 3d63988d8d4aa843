package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownProvider is returned for names without a registered factory.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Factory builds a provider on first use, so missing credentials only fail
// when that provider is actually selected.
type Factory func() (Provider, error)

// Registry resolves providers by name and memoizes successful builds.
type Registry struct {
	mu        sync.Mutex
	fallback  string
	factories map[string]Factory
	built     map[string]Provider
}

// NewRegistry creates a registry whose empty-name lookups resolve to fallback.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		fallback:  strings.ToLower(strings.TrimSpace(fallback)),
		factories: make(map[string]Factory),
		built:     make(map[string]Provider),
	}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	delete(r.built, key)
}

// Get returns the provider registered under name, building it if needed.
func (r *Registry) Get(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[key]; ok {
		return p, nil
	}
	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", key, err)
	}
	r.built[key] = p
	return p, nil
}

// Default returns the fallback provider name.
func (r *Registry) Default() string {
	return r.fallback
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
