// Package providers maps provider names to constructors for the upstream
// data fetchers. Concrete providers register themselves in init.go.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/datasource"
)

// Provider is an upstream source of quotes, metadata and news.
type Provider interface {
	datasource.Fetcher
	Name() string
	Ping(ctx context.Context) error
}

// Factory builds a provider from configuration.
type Factory func(cfg *config.Config, log zerolog.Logger) (Provider, error)

// ErrProviderNotFound is returned when a requested provider is not registered.
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return fmt.Sprintf("provider %q not found", e.Name)
}

// Registry is a thread-safe map of provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Duplicate registrations overwrite the previous entry.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("provider %q: nil factory", name)
	}
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
	return nil
}

// New builds the named provider.
func (r *Registry) New(name string, cfg *config.Config, log zerolog.Logger) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	p, err := f(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init provider %q: %w", name, err)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
