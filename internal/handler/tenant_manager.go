package handler

import (
	"sort"
	"sync"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/tenant"
)

// TenantManager keeps a separate Manager per tenant. Requests only reach
// the handlers of their own tenant.
type TenantManager struct {
	mu          sync.RWMutex
	evaluateAll bool
	byTenant    map[int]*Manager
}

// NewTenantManager creates an empty tenant-scoped manager.
func NewTenantManager(evaluateAll bool) *TenantManager {
	return &TenantManager{evaluateAll: evaluateAll, byTenant: make(map[int]*Manager)}
}

// EvaluatesAll reports whether the managers ignore processing-complete.
func (t *TenantManager) EvaluatesAll() bool {
	return t.evaluateAll
}

// ForTenant returns the manager of tenantID, creating it on first use. The
// invalid tenant maps to the super tenant.
func (t *TenantManager) ForTenant(tenantID int) *Manager {
	if tenantID == tenant.InvalidID {
		tenantID = tenant.SuperID
	}
	t.mu.RLock()
	m, ok := t.byTenant[tenantID]
	t.mu.RUnlock()
	if ok {
		return m
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok = t.byTenant[tenantID]; !ok {
		m = NewManager(t.evaluateAll)
		t.byTenant[tenantID] = m
	}
	return m
}

func (t *TenantManager) existing(tenantID int) *Manager {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byTenant[tenantID]
}

// Add registers h for tenantID.
func (t *TenantManager) Add(tenantID int, methods []method.Method, f Filter, h Handler) Registration {
	return t.ForTenant(tenantID).Add(tenantID, methods, f, h)
}

// AddWithPriority registers a priority handler for tenantID.
func (t *TenantManager) AddWithPriority(tenantID int, methods []method.Method, f Filter, h Handler) Registration {
	return t.ForTenant(tenantID).AddWithPriority(tenantID, methods, f, h)
}

// Remove drops a registration from whichever tenant holds it.
func (t *TenantManager) Remove(id Registration) bool {
	t.mu.RLock()
	managers := make([]*Manager, 0, len(t.byTenant))
	for _, m := range t.byTenant {
		managers = append(managers, m)
	}
	t.mu.RUnlock()
	for _, m := range managers {
		if m.Remove(id) {
			return true
		}
	}
	return false
}

// Dispatch runs the handlers of the request's tenant.
func (t *TenantManager) Dispatch(rc *RequestContext) error {
	m := t.existing(rc.TenantID)
	if m == nil {
		return nil
	}
	return m.Dispatch(rc)
}

// Tenants returns the tenants with registrations, sorted.
func (t *TenantManager) Tenants() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, len(t.byTenant))
	for id := range t.byTenant {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Handlers lists the registrations of every tenant, ordered by tenant.
func (t *TenantManager) Handlers() []HandlerInfo {
	var out []HandlerInfo
	for _, id := range t.Tenants() {
		for _, info := range t.existing(id).Handlers() {
			info.TenantID = id
			out = append(out, info)
		}
	}
	return out
}
