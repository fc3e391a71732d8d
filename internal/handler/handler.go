// Package handler dispatches registry operations through filtered handler
// chains organized in lifecycle phases.
package handler

import (
	"fmt"
)

// Handler acts on a request whose filter matched.
type Handler interface {
	Handle(rc *RequestContext) error
}

// Filter decides whether its handlers run for a request.
type Filter interface {
	Matches(rc *RequestContext) (bool, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(rc *RequestContext) error

// Handle calls f.
func (f HandlerFunc) Handle(rc *RequestContext) error {
	return f(rc)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(rc *RequestContext) (bool, error)

// Matches calls f.
func (f FilterFunc) Matches(rc *RequestContext) (bool, error) {
	return f(rc)
}

// Named is implemented by handlers that report their own name in
// execution records.
type Named interface {
	Name() string
}

// Name returns the name used for h in execution records.
func Name(h Handler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// EditProcessor applies a custom edit to a resource.
type EditProcessor interface {
	Process(rc *RequestContext) (bool, error)
}
