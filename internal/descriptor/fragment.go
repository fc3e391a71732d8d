package descriptor

import (
	"encoding/xml"
	"fmt"
)

// ParseHandlerXML reads a single handler element, as used for handlers
// added to a running registry. It returns a nil definition, with the reason
// in the warnings, when the element would be skipped in a full descriptor.
func ParseHandlerXML(data []byte, opts ...Option) (*HandlerDef, Warnings, error) {
	o := newOptions(opts)
	var rh rawHandler
	if err := xml.Unmarshal(expand(data, o), &rh); err != nil {
		return nil, nil, fmt.Errorf("parsing handler XML: %w", err)
	}

	b := &builder{opts: o}
	d := &Descriptor{}
	b.handlers(d, []rawHandler{rh})
	if len(d.Handlers) == 0 {
		return nil, b.warnings, nil
	}
	return &d.Handlers[0], b.warnings, nil
}

// ParseAspectXML reads a single aspect element.
func ParseAspectXML(data []byte, opts ...Option) (AspectDef, Warnings, error) {
	o := newOptions(opts)
	var ra rawAspect
	if err := xml.Unmarshal(expand(data, o), &ra); err != nil {
		return AspectDef{}, nil, fmt.Errorf("parsing aspect XML: %w", err)
	}

	b := &builder{opts: o}
	d := &Descriptor{}
	if err := b.aspects(d, []rawAspect{ra}); err != nil {
		return AspectDef{}, b.warnings, err
	}
	return d.Aspects[0], b.warnings, nil
}
