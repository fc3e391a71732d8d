package handler

// NoCacheRegistrar keeps the paths excluded from the resource cache.
type NoCacheRegistrar interface {
	RegisterNoCachePath(path string)
}

// NoCacheHandler excludes every path it sees from caching.
type NoCacheHandler struct {
	registrar NoCacheRegistrar
}

// NewNoCacheHandler creates the handler.
func NewNoCacheHandler(r NoCacheRegistrar) *NoCacheHandler {
	return &NoCacheHandler{registrar: r}
}

// Name identifies the handler in listings.
func (h *NoCacheHandler) Name() string {
	return KeyNoCacheHandler
}

// Handle implements Handler.
func (h *NoCacheHandler) Handle(rc *RequestContext) error {
	if h.registrar != nil && rc.Path != "" {
		h.registrar.RegisterNoCachePath(rc.Path)
	}
	return nil
}
