package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory constructs a new block instance.
type Factory func() Block

// Registry is a thread-safe mapping from block type names to factories.
// Factories run outside the registry lock, so a factory may itself consult
// the registry without deadlocking.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// defaultRegistry is the process-wide registry used by DefaultRegistry.
var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(nil)
	})
	return defaultRegistry
}

// Register adds a factory for the given type name. Registering over an
// existing type replaces the previous factory with a warning.
func (r *Registry) Register(typeName string, factory Factory) error {
	if typeName == "" || factory == nil {
		return fmt.Errorf("registering block type %q: %w", typeName, ErrInvalidArgument)
	}

	r.mu.Lock()
	_, replaced := r.factories[typeName]
	r.factories[typeName] = factory
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("block type re-registered, replacing previous factory",
			slog.String("type", typeName),
		)
	}
	return nil
}

// Unregister removes a type from the registry.
func (r *Registry) Unregister(typeName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typeName]; !ok {
		return false
	}
	delete(r.factories, typeName)
	return true
}

// Create builds a new block of the given type. The factory pointer is
// snapshotted under the lock and invoked outside it.
func (r *Registry) Create(typeName string) (Block, error) {
	r.mu.Lock()
	factory, ok := r.factories[typeName]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("block type %q: %w", typeName, ErrNotFound)
	}
	return factory(), nil
}

// CreateNamed builds a new block of the given type and assigns it a name.
func (r *Registry) CreateNamed(typeName, name string) (Block, error) {
	b, err := r.Create(typeName)
	if err != nil {
		return nil, err
	}
	b.SetName(name)
	return b, nil
}

// IsRegistered reports whether the type name has a factory.
func (r *Registry) IsRegistered(typeName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[typeName]
	return ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.factories)
}

// Clear removes every registration. Mainly for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}
