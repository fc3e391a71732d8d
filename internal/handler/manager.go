package handler

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/tenant"
)

// Registration identifies an added handler so it can be removed.
type Registration uint64

var lastRegistration atomic.Uint64

func nextRegistration() Registration {
	return Registration(lastRegistration.Add(1))
}

type handlerEntry struct {
	id      Registration
	handler Handler
	// methods is nil when the handler is engaged for every method.
	methods []method.Method
}

func (e *handlerEntry) engagedFor(m method.Method) bool {
	return e.methods == nil || slices.Contains(e.methods, m)
}

// filterGroup holds the handlers registered against one filter.
type filterGroup struct {
	filter   Filter
	handlers []*handlerEntry
}

// HandlerInfo describes a registered handler for listings.
type HandlerInfo struct {
	ID       Registration
	Handler  string
	Filter   string
	Methods  []method.Method
	Priority bool
	TenantID int
}

// Manager runs the handlers of one phase. Filters are evaluated in
// registration order, priority registrations first; the handlers of a
// matching filter run in insertion order.
type Manager struct {
	mu          sync.RWMutex
	evaluateAll bool
	priority    []*filterGroup
	normal      []*filterGroup
}

// NewManager creates a manager. When evaluateAll is set every matching
// handler runs even after one marks processing complete.
func NewManager(evaluateAll bool) *Manager {
	return &Manager{evaluateAll: evaluateAll}
}

// EvaluatesAll reports whether the manager ignores processing-complete.
func (m *Manager) EvaluatesAll() bool {
	return m.evaluateAll
}

// Add registers h behind f for methods (nil engages every method). The
// tenant argument is ignored; it exists so Manager satisfies PhaseManager.
func (m *Manager) Add(_ int, methods []method.Method, f Filter, h Handler) Registration {
	return m.add(methods, f, h, false)
}

// AddWithPriority is Add for handlers that must see requests before every
// normal registration.
func (m *Manager) AddWithPriority(_ int, methods []method.Method, f Filter, h Handler) Registration {
	return m.add(methods, f, h, true)
}

func (m *Manager) add(methods []method.Method, f Filter, h Handler, priority bool) Registration {
	entry := &handlerEntry{id: nextRegistration(), handler: h}
	if methods != nil {
		entry.methods = slices.Clone(methods)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	groups := &m.normal
	if priority {
		groups = &m.priority
	}
	for _, g := range *groups {
		if sameFilter(g.filter, f) {
			g.handlers = append(g.handlers, entry)
			return entry.id
		}
	}
	*groups = append(*groups, &filterGroup{filter: f, handlers: []*handlerEntry{entry}})
	return entry.id
}

// sameFilter groups registrations sharing a filter instance. Filters of
// uncomparable types never share a group.
func sameFilter(a, b Filter) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Remove drops a registration. It reports whether it was found.
func (m *Manager) Remove(id Registration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return removeFrom(&m.priority, id) || removeFrom(&m.normal, id)
}

func removeFrom(groups *[]*filterGroup, id Registration) bool {
	for gi, g := range *groups {
		for hi, e := range g.handlers {
			if e.id != id {
				continue
			}
			g.handlers = slices.Delete(g.handlers, hi, hi+1)
			if len(g.handlers) == 0 {
				*groups = slices.Delete(*groups, gi, gi+1)
			}
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, g := range m.priority {
		n += len(g.handlers)
	}
	for _, g := range m.normal {
		n += len(g.handlers)
	}
	return n
}

// Handlers lists the registrations in dispatch order.
func (m *Manager) Handlers() []HandlerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HandlerInfo
	collect := func(groups []*filterGroup, priority bool) {
		for _, g := range groups {
			for _, e := range g.handlers {
				out = append(out, HandlerInfo{
					ID:       e.id,
					Handler:  Name(e.handler),
					Filter:   filterName(g.filter),
					Methods:  slices.Clone(e.methods),
					Priority: priority,
					TenantID: tenant.InvalidID,
				})
			}
		}
	}
	collect(m.priority, true)
	collect(m.normal, false)
	return out
}

func filterName(f Filter) string {
	if n, ok := f.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", f)
}

// snapshot copies the groups engaged for method so dispatch runs without
// holding the lock.
func (m *Manager) snapshot(meth method.Method) []filterGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []filterGroup
	for _, groups := range [][]*filterGroup{m.priority, m.normal} {
		for _, g := range groups {
			var engaged []*handlerEntry
			for _, e := range g.handlers {
				if e.engagedFor(meth) {
					engaged = append(engaged, e)
				}
			}
			if len(engaged) > 0 {
				out = append(out, filterGroup{filter: g.filter, handlers: engaged})
			}
		}
	}
	return out
}

// Dispatch runs the handlers whose filters match rc. It stops once a
// handler marks processing complete, unless the manager evaluates all
// handlers outside simulation. In simulation mode a failing handler is
// recorded and ends the phase without an error.
func (m *Manager) Dispatch(rc *RequestContext) error {
	for _, g := range m.snapshot(rc.Method) {
		ok, err := g.filter.Matches(rc)
		if err != nil {
			return fmt.Errorf("filter %s: %w", filterName(g.filter), err)
		}
		if !ok {
			continue
		}
		for _, e := range g.handlers {
			err := e.handler.Handle(rc)
			rc.recordExecution(e.handler, err)
			if err != nil {
				if rc.Simulation {
					return nil
				}
				return fmt.Errorf("handler %s: %w", Name(e.handler), err)
			}
			if m.done(rc) {
				return nil
			}
		}
	}
	return nil
}

func (m *Manager) done(rc *RequestContext) bool {
	return rc.IsProcessingComplete() && (rc.Simulation || !m.evaluateAll)
}
