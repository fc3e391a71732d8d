// Package plugin maps configuration class names to factories.
//
// Handlers, filters, edit processors, aspects and query processors are named
// in the descriptor by a key. Each kind has its own Registry; a factory
// receives the configured properties and returns a ready instance.
package plugin

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknown is returned by Build for a key with no factory.
	ErrUnknown = errors.New("unknown plugin")

	// ErrDuplicate is returned when a key is registered twice.
	ErrDuplicate = errors.New("plugin already registered")

	// ErrSealed is returned when registering into a sealed registry.
	ErrSealed = errors.New("plugin registry is sealed")
)

// Factory creates a plugin from its configured properties.
type Factory[T any] func(props Properties) (T, error)

// Registry holds the factories for one plugin kind.
type Registry[T any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]Factory[T]
	aliases   map[string]string
	sealed    bool
}

// NewRegistry creates an empty registry. kind names the plugin kind in
// errors ("handler", "filter", ...).
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		factories: make(map[string]Factory[T]),
		aliases:   make(map[string]string),
	}
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Register adds a factory under key.
func (r *Registry[T]) Register(key string, f Factory[T]) error {
	key = normalizeKey(key)
	if key == "" || f == nil {
		return fmt.Errorf("%s: empty key or nil factory", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%s %q: %w", r.kind, key, ErrSealed)
	}
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, key, ErrDuplicate)
	}
	if _, ok := r.aliases[key]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, key, ErrDuplicate)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry[T]) MustRegister(key string, f Factory[T]) {
	if err := r.Register(key, f); err != nil {
		panic(err)
	}
}

// Alias makes alias resolve to the factory registered under key. Legacy
// descriptors name plugins by fully qualified class names.
func (r *Registry[T]) Alias(alias, key string) error {
	alias, key = normalizeKey(alias), normalizeKey(key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%s %q: %w", r.kind, alias, ErrSealed)
	}
	if _, ok := r.factories[key]; !ok {
		return fmt.Errorf("%s %q: %w", r.kind, key, ErrUnknown)
	}
	if _, ok := r.factories[alias]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, alias, ErrDuplicate)
	}
	if _, ok := r.aliases[alias]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, alias, ErrDuplicate)
	}
	r.aliases[alias] = key
	return nil
}

// Seal rejects further registrations.
func (r *Registry[T]) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry[T]) lookup(key string) (Factory[T], bool) {
	key = normalizeKey(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	f, ok := r.factories[key]
	return f, ok
}

// Has reports whether key (or an alias) is registered.
func (r *Registry[T]) Has(key string) bool {
	_, ok := r.lookup(key)
	return ok
}

// Build creates the plugin registered under key.
func (r *Registry[T]) Build(key string, props Properties) (T, error) {
	f, ok := r.lookup(key)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", r.kind, key, ErrUnknown)
	}
	v, err := f(props)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("creating %s %q: %w", r.kind, key, err)
	}
	return v, nil
}

// Keys returns the registered keys, aliases excluded, sorted.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Aliases returns the aliases of key, sorted.
func (r *Registry[T]) Aliases(key string) []string {
	key = normalizeKey(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for alias, target := range r.aliases {
		if target == key {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

// Kind returns the plugin kind name.
func (r *Registry[T]) Kind() string {
	return r.kind
}
