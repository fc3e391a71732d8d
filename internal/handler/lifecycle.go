package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

// Phase names a handler lifecycle phase.
type Phase string

const (
	PhaseDefault   Phase = "default"
	PhaseTenant    Phase = "tenant"
	PhaseSystem    Phase = "system"
	PhaseUser      Phase = "user"
	PhaseReporting Phase = "reporting"
	PhaseCommit    Phase = "commit"
	PhaseRollback  Phase = "rollback"
)

// Phases lists every phase in dispatch order, commit and rollback last.
func Phases() []Phase {
	return []Phase{PhaseDefault, PhaseTenant, PhaseSystem, PhaseUser, PhaseReporting, PhaseCommit, PhaseRollback}
}

// ParsePhase looks a phase up by name, ignoring case.
func ParsePhase(name string) (Phase, bool) {
	p := Phase(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Phases() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// ErrPhaseNotExposed is returned by ManagerForPhase for internally managed
// or unknown phases.
var ErrPhaseNotExposed = errors.New("handler phase is managed internally")

// PhaseManager is the handler chain of one phase.
type PhaseManager interface {
	Add(tenantID int, methods []method.Method, f Filter, h Handler) Registration
	AddWithPriority(tenantID int, methods []method.Method, f Filter, h Handler) Registration
	Remove(id Registration) bool
	Dispatch(rc *RequestContext) error
	EvaluatesAll() bool
	Handlers() []HandlerInfo
}

var tracer = otel.Tracer("github.com/zjrosen/regd/internal/handler")

// LifecycleManager routes requests through the phases. Tenant, user,
// commit and rollback handlers are kept per tenant; reporting, commit and
// rollback run every matching handler.
type LifecycleManager struct {
	phases  map[Phase]PhaseManager
	metrics *metrics.Metrics
}

// NewLifecycleManager creates the seven phases. m may be nil.
func NewLifecycleManager(m *metrics.Metrics) *LifecycleManager {
	return &LifecycleManager{
		metrics: m,
		phases: map[Phase]PhaseManager{
			PhaseDefault:   NewManager(false),
			PhaseTenant:    NewTenantManager(false),
			PhaseSystem:    NewManager(false),
			PhaseUser:      NewTenantManager(false),
			PhaseReporting: NewManager(true),
			PhaseCommit:    NewTenantManager(true),
			PhaseRollback:  NewTenantManager(true),
		},
	}
}

func (l *LifecycleManager) phase(p Phase) PhaseManager {
	if p == "" {
		return l.phases[PhaseDefault]
	}
	pm, ok := l.phases[p]
	if !ok {
		log.Warn(log.CatHandler, "invalid handler lifecycle phase, adding handler to the default phase", "phase", p)
		return l.phases[PhaseDefault]
	}
	return pm
}

// AddHandler registers h in phase. An empty phase means default and an
// unknown phase falls back to default with a warning. tenantID only
// matters for tenant-scoped phases.
func (l *LifecycleManager) AddHandler(p Phase, tenantID int, methods []method.Method, f Filter, h Handler) Registration {
	return l.phase(p).Add(tenantID, methods, f, h)
}

// AddHandlerWithPriority is AddHandler for priority registrations.
func (l *LifecycleManager) AddHandlerWithPriority(p Phase, tenantID int, methods []method.Method, f Filter, h Handler) Registration {
	return l.phase(p).AddWithPriority(tenantID, methods, f, h)
}

// RemoveHandler drops a registration from whichever phase holds it.
func (l *LifecycleManager) RemoveHandler(id Registration) bool {
	for _, p := range Phases() {
		if l.phases[p].Remove(id) {
			return true
		}
	}
	return false
}

// ManagerForPhase exposes the commit and rollback chains so transaction
// code can register with them. Every other phase is internal.
func (l *LifecycleManager) ManagerForPhase(p Phase) (PhaseManager, error) {
	if p != PhaseCommit && p != PhaseRollback {
		log.Error(log.CatHandler, "unable to provide handler manager for internally managed or invalid phase", "phase", p)
		return nil, fmt.Errorf("phase %q: %w", p, ErrPhaseNotExposed)
	}
	return l.phases[p], nil
}

// Handlers lists the registrations of phase p.
func (l *LifecycleManager) Handlers(p Phase) []HandlerInfo {
	pm, ok := l.phases[p]
	if !ok {
		return nil
	}
	return pm.Handlers()
}

// Dispatch runs a request through the phases. Default, tenant and system
// run until one completes the request. The user phase always runs with a
// fresh completion flag, and reporting runs only when nothing completed.
func (l *LifecycleManager) Dispatch(rc *RequestContext) (err error) {
	start := time.Now()
	_, span := tracer.Start(rc.Context(), "handler.dispatch")
	span.SetAttributes(
		attribute.String("registry.method", string(rc.Method)),
		attribute.String("registry.path", rc.Path),
		attribute.Int("registry.tenant", rc.TenantID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		l.metrics.ObserveDispatch(string(rc.Method), start)
	}()

	for _, p := range []Phase{PhaseDefault, PhaseTenant, PhaseSystem} {
		if err := l.run(p, rc); err != nil {
			return err
		}
		if rc.IsProcessingComplete() {
			break
		}
	}
	complete := rc.IsProcessingComplete()

	rc.SetProcessingComplete(false)
	if err := l.run(PhaseUser, rc); err != nil {
		return err
	}
	complete = complete || rc.IsProcessingComplete()
	rc.SetProcessingComplete(complete)

	if !complete {
		if err := l.run(PhaseReporting, rc); err != nil {
			return err
		}
	}
	return nil
}

// Commit runs the commit handlers of the request's tenant.
func (l *LifecycleManager) Commit(rc *RequestContext) error {
	return l.run(PhaseCommit, rc)
}

// Rollback runs the rollback handlers of the request's tenant.
func (l *LifecycleManager) Rollback(rc *RequestContext) error {
	return l.run(PhaseRollback, rc)
}

func (l *LifecycleManager) run(p Phase, rc *RequestContext) error {
	err := l.phases[p].Dispatch(rc)
	l.metrics.ObservePhase(string(p), err)
	if err != nil {
		return fmt.Errorf("%s phase: %w", p, err)
	}
	return nil
}
