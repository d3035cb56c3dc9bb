package gateways

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
)

// Registry resolves gateway identifiers to adapters. New providers register
// themselves; the registry core never changes per gateway.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name. Registering the same name
// twice is a wiring bug and fails loudly.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is required")
	}
	name := normalizeName(adapter.Name())
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("gateway %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Resolve returns the adapter for the given gateway identifier.
func (r *Registry) Resolve(name string) (Adapter, error) {
	key := normalizeName(name)
	r.mu.RLock()
	adapter, ok := r.adapters[key]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedGateway, fmt.Sprintf("gateway %q is not configured", name)).
			WithDetails(map[string]any{"gateway": name, "available": r.Names()})
	}
	return adapter, nil
}

// Names lists the registered gateway identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
