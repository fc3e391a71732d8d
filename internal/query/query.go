// Package query runs custom registry queries through processors selected by
// query media type.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/zjrosen/regd/internal/log"
)

// Result types a query may ask for.
const (
	ResultTypeResource = "Resource"
	ResultTypeRaw      = "Raw"
)

var (
	ErrNoProcessor  = errors.New("no query processor for type")
	ErrEmptyQuery   = errors.New("empty query")
	ErrBadParameter = errors.New("invalid query parameter")
)

// Query is one query execution request.
type Query struct {
	// Type is the query media type, e.g. application/vnd.sql.query.
	Type string
	// Path is the registry path of the stored query, used for no-cache
	// checks and cache keys.
	Path string
	// Text is the query body. A "query" parameter overrides it.
	Text string
	// Params holds positional parameters keyed "1", "2", ... plus the
	// reserved keys "query", "resultType", "mediaType" and "content".
	Params   map[string]any
	TenantID int
}

var reservedParams = map[string]bool{
	"query":      true,
	"resultType": true,
	"mediaType":  true,
	"content":    true,
}

// Statement returns the query text after parameter overrides.
func (q Query) Statement() (string, error) {
	text := q.Text
	if v, ok := q.Params["query"]; ok {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: query must be a string, got %T", ErrBadParameter, v)
		}
		text = s
	}
	if text == "" {
		return "", ErrEmptyQuery
	}
	return text, nil
}

// ResultType returns the requested result type, ResultTypeResource when
// none is given.
func (q Query) ResultType() string {
	if v, ok := q.Params["resultType"].(string); ok && v != "" {
		return v
	}
	return ResultTypeResource
}

// Args returns the positional parameters in index order.
func (q Query) Args() ([]any, error) {
	type indexed struct {
		n int
		v any
	}
	var args []indexed
	for k, v := range q.Params {
		if reservedParams[k] {
			continue
		}
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q is not a positional index", ErrBadParameter, k)
		}
		args = append(args, indexed{n, v})
	}
	sort.Slice(args, func(i, j int) bool { return args[i].n < args[j].n })

	out := make([]any, len(args))
	for i, a := range args {
		if a.n != i+1 {
			return nil, fmt.Errorf("%w: missing parameter %d", ErrBadParameter, i+1)
		}
		out[i] = a.v
	}
	return out, nil
}

// Result is a query outcome. Paths is filled for resource results; Rows
// always holds the stringified rows.
type Result struct {
	ResultType string     `json:"resultType"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
	Paths      []string   `json:"paths,omitempty"`
}

// Processor executes queries of one type.
type Processor interface {
	Execute(ctx context.Context, q Query) (Result, error)
}

// Manager maps query types to processors.
type Manager struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

func NewManager() *Manager {
	return &Manager{processors: make(map[string]Processor)}
}

// Register sets the processor for queryType, replacing any previous one.
func (m *Manager) Register(queryType string, p Processor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processors[queryType]; ok {
		log.Warn(log.CatQuery, "replacing query processor", "type", queryType)
	}
	m.processors[queryType] = p
}

func (m *Manager) Processor(queryType string) (Processor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processors[queryType]
	return p, ok
}

// Types returns the registered query types, sorted.
func (m *Manager) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.processors))
	for t := range m.processors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute runs q with the processor registered for q.Type.
func (m *Manager) Execute(ctx context.Context, q Query) (Result, error) {
	p, ok := m.Processor(q.Type)
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrNoProcessor, q.Type)
	}
	return p.Execute(ctx, q)
}
