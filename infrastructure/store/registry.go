// Package store provides persistent ports.ReviewStore implementations and
// a registry that opens them by kind. Two backends ship with the package:
// an embedded bbolt file for single-node deployments and a Redis adapter
// for shared ones. The in-memory store used by tests lives in
// internal/testutils.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rkonrad/go-concord/internal/ports"
)

// Factory builds a ReviewStore from a backend-specific DSN, such as a file
// path for bolt or an address for Redis.
type Factory func(dsn string) (ports.ReviewStore, error)

// Registry maps store kinds to their factories. It supports dynamic
// registration so embedders can add custom backends at runtime.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in backends
// pre-registered under the kinds "bolt" and "redis".
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.factories["bolt"] = func(dsn string) (ports.ReviewStore, error) {
		return NewBoltStore(dsn)
	}
	r.factories["redis"] = func(dsn string) (ports.ReviewStore, error) {
		return NewRedisStore(dsn)
	}
	return r
}

// Register adds a factory for a new store kind, replacing any existing
// registration for the same kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("store kind cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	return nil
}

// Open builds a store of the given kind from the DSN. Unknown kinds
// produce a ConfigError naming the registered alternatives.
func (r *Registry) Open(kind, dsn string) (ports.ReviewStore, error) {
	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, ports.NewConfigError(kind,
			fmt.Errorf("unknown store kind %q (registered: %v)", kind, r.Kinds()))
	}

	s, err := factory(dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", kind, err)
	}
	return s, nil
}

// Kinds returns the registered store kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
