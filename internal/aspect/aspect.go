// Package aspect holds the aspects (lifecycles and similar state machines)
// that can be attached to registry resources.
package aspect

import (
	"errors"
	"sort"
	"sync"

	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/plugin"
	"github.com/zjrosen/regd/internal/tenant"
)

var (
	// ErrInvalidAction is returned by Invoke for an action that is not
	// available in the resource's current state.
	ErrInvalidAction = errors.New("action not available")

	// ErrNotAssociated is returned when a resource has no state in the
	// aspect.
	ErrNotAssociated = errors.New("resource not associated with aspect")
)

// Aspect is a behaviour attached to resources, such as a lifecycle.
type Aspect interface {
	// Actions lists what can be invoked on the request's resource now.
	Actions(rc *handler.RequestContext) []string
	Invoke(rc *handler.RequestContext, action string) error
	Associate(path string) error
	Dissociate(path string) error
}

// Store keeps the configured aspects of each tenant by name.
type Store struct {
	mu       sync.RWMutex
	byTenant map[int]map[string]Aspect
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byTenant: make(map[int]map[string]Aspect)}
}

func normalizeTenant(id int) int {
	if id == tenant.InvalidID {
		return tenant.SuperID
	}
	return id
}

// Add registers a under name for tenantID, replacing any earlier aspect.
func (s *Store) Add(tenantID int, name string, a Aspect) {
	tenantID = normalizeTenant(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	aspects, ok := s.byTenant[tenantID]
	if !ok {
		aspects = make(map[string]Aspect)
		s.byTenant[tenantID] = aspects
	}
	aspects[name] = a
}

// Remove drops the aspect called name. It reports whether it existed.
func (s *Store) Remove(tenantID int, name string) bool {
	tenantID = normalizeTenant(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	aspects := s.byTenant[tenantID]
	if _, ok := aspects[name]; !ok {
		return false
	}
	delete(aspects, name)
	return true
}

// Get returns the aspect called name for tenantID.
func (s *Store) Get(tenantID int, name string) (Aspect, bool) {
	tenantID = normalizeTenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byTenant[tenantID][name]
	return a, ok
}

// Names returns the aspect names of tenantID, sorted.
func (s *Store) Names(tenantID int) []string {
	tenantID = normalizeTenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byTenant[tenantID]))
	for name := range s.byTenant[tenantID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeyLifecycle is the factory key of the built-in lifecycle aspect.
const KeyLifecycle = "Lifecycle"

// Register adds the built-in aspects to r.
func Register(r *plugin.Registry[Aspect]) error {
	if err := r.Register(KeyLifecycle, newLifecycle); err != nil {
		return err
	}
	return r.Alias("org.wso2.carbon.registry.core.utils.DefaultLifecycle", KeyLifecycle)
}
