package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/tenant"
)

// Resource is the registry resource a request operates on.
type Resource struct {
	Path       string
	MediaType  string
	Content    []byte
	Properties map[string][]string
}

// Execution records the outcome of one handler run.
type Execution struct {
	Handler string
	Err     error
}

// Succeeded reports whether the handler returned no error.
func (e Execution) Succeeded() bool {
	return e.Err == nil
}

// RequestContext carries one registry operation through the handler chain.
// Handlers may rewrite paths, attach a result and mark processing complete.
type RequestContext struct {
	ctx context.Context

	Method method.Method
	// Path is the complete resource path of the request.
	Path string
	// ActualPath is set by handlers that redirect the request, for example
	// to a mount target.
	ActualPath  string
	SourcePath  string
	TargetPath  string
	VersionPath string
	TenantID    int
	User        string
	Resource    *Resource
	// Action is the aspect action for INVOKE_ASPECT.
	Action string
	// Simulation runs handlers without failing the request on errors.
	Simulation bool
	Result     any

	mu         sync.Mutex
	complete   bool
	props      map[string]any
	executions []Execution
}

// NewRequestContext creates a request for m on path, owned by the super
// tenant until TenantID is set.
func NewRequestContext(ctx context.Context, m method.Method, path string) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RequestContext{
		ctx:      ctx,
		Method:   m,
		Path:     path,
		TenantID: tenant.SuperID,
		props:    make(map[string]any),
	}
}

// Context returns the request's context.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}

// SetProcessingComplete marks whether the current phase may stop.
func (rc *RequestContext) SetProcessingComplete(done bool) {
	rc.mu.Lock()
	rc.complete = done
	rc.mu.Unlock()
}

// IsProcessingComplete reports whether a handler completed the request.
func (rc *RequestContext) IsProcessingComplete() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.complete
}

// SetProperty attaches a value for later handlers.
func (rc *RequestContext) SetProperty(name string, value any) {
	rc.mu.Lock()
	rc.props[name] = value
	rc.mu.Unlock()
}

// Property returns a value set by an earlier handler.
func (rc *RequestContext) Property(name string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.props[name]
	return v, ok
}

// EffectivePath is ActualPath when a handler redirected the request,
// otherwise Path.
func (rc *RequestContext) EffectivePath() string {
	if rc.ActualPath != "" {
		return rc.ActualPath
	}
	return rc.Path
}

func (rc *RequestContext) recordExecution(h Handler, err error) {
	rc.mu.Lock()
	rc.executions = append(rc.executions, Execution{Handler: Name(h), Err: err})
	rc.mu.Unlock()
}

// Executions returns the handler runs in order.
func (rc *RequestContext) Executions() []Execution {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]Execution, len(rc.executions))
	copy(out, rc.executions)
	return out
}

// ExecutionStatus returns the last recorded run of the named handler.
func (rc *RequestContext) ExecutionStatus(name string) (Execution, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := len(rc.executions) - 1; i >= 0; i-- {
		if rc.executions[i].Handler == name {
			return rc.executions[i], true
		}
	}
	return Execution{}, false
}

func (rc *RequestContext) String() string {
	return fmt.Sprintf("%s %s (tenant %d)", rc.Method, rc.Path, rc.TenantID)
}
