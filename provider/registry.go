package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Provider from declarative options (API keys,
// recipient addresses, endpoint URLs, ...). Factories MUST fail fast on
// missing required options; configuration errors belong at setup time, not
// call time.
type Factory func(opts map[string]string) (Provider, error)

// Registry maps declarative provider names to factories. It is an open
// extension point: new payment backends register themselves at runtime
// without modifying this package.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Re-registering a name replaces the
// previous factory; an empty name or nil factory is a programming error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("provider: register: empty name")
	}
	if f == nil {
		return fmt.Errorf("provider: register %q: nil factory", name)
	}
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
	return nil
}

// Build constructs the named provider. Unknown names are a hard
// configuration error.
func (r *Registry) Build(name string, opts map[string]string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q (registered: %v)", name, r.names())
	}
	p, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("provider: build %q: %w", name, err)
	}
	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("provider: build %q: %w", name, err)
	}
	return p, nil
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
