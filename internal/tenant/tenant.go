// Package tenant holds tenant identifiers and name resolution.
package tenant

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	// SuperID is the tenant that owns descriptor-level configuration.
	SuperID = -1234
	// InvalidID marks an unset tenant.
	InvalidID = -1
)

// Resolver maps tenant names to ids.
type Resolver interface {
	TenantID(name string) (int, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (int, bool)

// TenantID implements Resolver.
func (f ResolverFunc) TenantID(name string) (int, bool) {
	return f(name)
}

// Directory is an in-memory Resolver fed from settings.
type Directory struct {
	mu    sync.RWMutex
	byKey map[string]int
}

// NewDirectory builds a directory from a name → id map. Names are matched
// case-insensitively.
func NewDirectory(tenants map[string]int) *Directory {
	d := &Directory{byKey: make(map[string]int, len(tenants))}
	for name, id := range tenants {
		d.byKey[strings.ToLower(strings.TrimSpace(name))] = id
	}
	return d
}

// TenantID implements Resolver.
func (d *Directory) TenantID(name string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byKey[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// Add registers or replaces a tenant.
func (d *Directory) Add(name string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[strings.ToLower(strings.TrimSpace(name))] = id
}

// Names returns the registered tenant names, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byKey))
	for name := range d.byKey {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse resolves a tenant reference that is either a numeric id or a name
// known to r. It returns InvalidID and false when neither applies.
func Parse(ref string, r Resolver) (int, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return InvalidID, false
	}
	if id, err := strconv.Atoi(ref); err == nil {
		return id, true
	}
	if r == nil {
		return InvalidID, false
	}
	if id, ok := r.TenantID(ref); ok {
		return id, true
	}
	return InvalidID, false
}
