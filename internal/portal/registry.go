package portal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/imamik/nexus/internal/config"
)

// Registry maps driver names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("driver %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Has reports whether a driver name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered driver names, sorted.
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

// Open creates a driver for cfg using the factory named by cfg.Driver.
func (r *Registry) Open(ctx context.Context, cfg config.VendorConfig) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: unknown driver %q", cfg.ID, cfg.Driver)
	}
	d, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open driver: %w", cfg.ID, err)
	}
	return d, nil
}
