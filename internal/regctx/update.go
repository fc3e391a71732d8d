package regctx

import (
	"fmt"
	"io"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/tenant"
)

// UpdateHandler parses a handler element and adds it to phase of the
// running context. An empty phase means default. It reports false when the
// handler was skipped; the reason is logged.
func (c *Context) UpdateHandler(data []byte, phase handler.Phase) (bool, error) {
	def, warnings, err := descriptor.ParseHandlerXML(data, c.opts.DescriptorOptions...)
	if err != nil {
		return false, err
	}
	if def == nil {
		log.Warn(log.CatHandler, "handler update skipped", "reasons", warnings.Strings())
		return false, nil
	}
	return c.installHandler(*def, phase)
}

// UpdateAspect parses an aspect element and adds it for the tenant,
// replacing an aspect of the same name.
func (c *Context) UpdateAspect(tenantID int, data []byte) error {
	def, _, err := descriptor.ParseAspectXML(data, c.opts.DescriptorOptions...)
	if err != nil {
		return err
	}
	if !c.set.Aspects.Has(def.Class) {
		return fmt.Errorf("aspect %q: class %q: %w", def.Name, def.Class, descriptor.ErrUnknownReference)
	}
	if tenantID == tenant.InvalidID {
		tenantID = tenant.SuperID
	}
	return c.installAspect(tenantID, def)
}

// ExportXML writes the legacy configuration export with passwords
// resolved.
func (c *Context) ExportXML(w io.Writer) error {
	return descriptor.ExportXML(w, c.desc, c.opts.Secrets)
}
