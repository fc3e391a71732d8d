package regctx

import (
	"fmt"

	"github.com/zjrosen/regd/internal/aspect"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/plugin"
	"github.com/zjrosen/regd/internal/query"
)

// Set groups the factory registries a context builds its plugins from.
type Set struct {
	Handlers        *plugin.Registry[handler.Handler]
	Filters         *plugin.Registry[handler.Filter]
	EditProcessors  *plugin.Registry[handler.EditProcessor]
	Aspects         *plugin.Registry[aspect.Aspect]
	QueryProcessors *plugin.Registry[query.Processor]
}

// NewSet returns a Set of empty registries.
func NewSet() *Set {
	return &Set{
		Handlers:        plugin.NewRegistry[handler.Handler]("handler"),
		Filters:         plugin.NewRegistry[handler.Filter]("filter"),
		EditProcessors:  plugin.NewRegistry[handler.EditProcessor]("edit processor"),
		Aspects:         plugin.NewRegistry[aspect.Aspect]("aspect"),
		QueryProcessors: plugin.NewRegistry[query.Processor]("query processor"),
	}
}

// Deps carries the runtime services the built-in plugins are wired to.
type Deps struct {
	Handler handler.Deps
	Query   query.Deps
}

// DefaultSet returns a Set with every built-in factory registered.
func DefaultSet(deps Deps) (*Set, error) {
	s := NewSet()
	if err := handler.RegisterFilters(s.Filters); err != nil {
		return nil, fmt.Errorf("registering filters: %w", err)
	}
	if err := handler.RegisterHandlers(s.Handlers, deps.Handler); err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}
	if err := handler.RegisterEditProcessors(s.EditProcessors); err != nil {
		return nil, fmt.Errorf("registering edit processors: %w", err)
	}
	if err := aspect.Register(s.Aspects); err != nil {
		return nil, fmt.Errorf("registering aspects: %w", err)
	}
	if err := query.Register(s.QueryProcessors, deps.Query); err != nil {
		return nil, fmt.Errorf("registering query processors: %w", err)
	}
	return s, nil
}

// Seal stops further registration in every registry.
func (s *Set) Seal() {
	s.Handlers.Seal()
	s.Filters.Seal()
	s.EditProcessors.Seal()
	s.Aspects.Seal()
	s.QueryProcessors.Seal()
}
