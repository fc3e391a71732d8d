package regctx

import (
	"context"
	"fmt"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/plugin"
	"github.com/zjrosen/regd/internal/query"
	"github.com/zjrosen/regd/internal/tenant"
)

func toProperties(props []descriptor.Property) plugin.Properties {
	out := make(plugin.Properties, len(props))
	for i, p := range props {
		out[i] = plugin.Property{Name: p.Name, Type: p.Type, Value: p.Value, XML: p.XML}
	}
	return out
}

// toMethods keeps nil as "every method".
func toMethods(names []string) []method.Method {
	if names == nil {
		return nil
	}
	out := make([]method.Method, 0, len(names))
	for _, n := range names {
		if m, ok := method.Parse(n); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *Context) installMount(m descriptor.Mount) error {
	remote, ok := c.desc.RemoteInstance(m.InstanceID)
	if !ok {
		return fmt.Errorf("mount %q: remote instance %q: %w", m.Path, m.InstanceID, descriptor.ErrUnknownReference)
	}
	filter, err := handler.MountFilter(m)
	if err != nil {
		return fmt.Errorf("mount %q: %w", m.Path, err)
	}
	c.handlers.AddHandler(handler.PhaseSystem, tenant.SuperID, nil, filter, handler.NewMountHandler(m, remote))
	log.Debug(log.CatMount, "mounted remote path", "path", m.Path, "instance", m.InstanceID, "target", m.TargetPath)
	return nil
}

// installHandler builds h and adds it to phase. It reports false when the
// handler was skipped.
func (c *Context) installHandler(h descriptor.HandlerDef, phase handler.Phase) (bool, error) {
	if !c.set.Filters.Has(h.Filter.Class) {
		log.Warn(log.CatHandler, "unknown filter, skipping handler", "handler", h.Class, "filter", h.Filter.Class)
		return false, nil
	}
	if !c.set.Handlers.Has(h.Class) {
		log.Warn(log.CatHandler, "unknown handler, skipping it", "handler", h.Class)
		return false, nil
	}

	filter, err := c.set.Filters.Build(h.Filter.Class, toProperties(h.Filter.Properties))
	if err != nil {
		return false, fmt.Errorf("handler %s: %w", h.Class, err)
	}
	hdl, err := c.set.Handlers.Build(h.Class, toProperties(h.Properties))
	if err != nil {
		return false, fmt.Errorf("handler %s: %w", h.Class, err)
	}

	if h.Edit != nil {
		c.installEditProcessor(*h.Edit)
	}
	c.handlers.AddHandler(phase, h.TenantID, toMethods(h.Methods), filter, hdl)
	log.Debug(log.CatHandler, "added handler", "handler", h.Class, "phase", phase, "filter", h.Filter.Class)
	return true, nil
}

func (c *Context) installEditProcessor(e descriptor.EditDef) {
	if !c.set.EditProcessors.Has(e.Class) {
		log.Warn(log.CatHandler, "unknown edit processor, ignoring it", "processor", e.Processor, "class", e.Class)
		return
	}
	p, err := c.set.EditProcessors.Build(e.Class, nil)
	if err != nil {
		log.ErrorErr(log.CatHandler, "failed to create edit processor", err, "processor", e.Processor)
		return
	}
	c.edits.Add(e.Processor, p)
}

func (c *Context) installAspect(tenantID int, a descriptor.AspectDef) error {
	if !c.set.Aspects.Has(a.Class) {
		log.Warn(log.CatAspect, "unknown aspect class, skipping it", "aspect", a.Name, "class", a.Class)
		return nil
	}
	asp, err := c.set.Aspects.Build(a.Class, toProperties(a.Properties))
	if err != nil {
		return fmt.Errorf("aspect %q: %w", a.Name, err)
	}
	c.aspects.Add(tenantID, a.Name, asp)
	log.Debug(log.CatAspect, "added aspect", "aspect", a.Name, "tenant", tenantID)
	return nil
}

func (c *Context) installQueryProcessor(q descriptor.QueryProcessorDef) error {
	if !c.set.QueryProcessors.Has(q.Processor) {
		log.Warn(log.CatQuery, "unknown query processor, skipping it", "type", q.QueryType, "processor", q.Processor)
		return nil
	}
	p, err := c.set.QueryProcessors.Build(q.Processor, nil)
	if err != nil {
		return fmt.Errorf("query processor %s: %w", q.Processor, err)
	}
	c.queries.Register(q.QueryType, p)
	return nil
}

// ExecuteQuery runs q with the processor registered for its type.
func (c *Context) ExecuteQuery(ctx context.Context, q query.Query) (query.Result, error) {
	return c.queries.Execute(ctx, q)
}
