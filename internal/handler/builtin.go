package handler

import (
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/plugin"
)

// Factory keys of the built-in plugins.
const (
	KeyURLMatcher         = "URLMatcher"
	KeyMediaTypeMatcher   = "MediaTypeMatcher"
	KeyMountHandler       = "MountHandler"
	KeyActivityLogHandler = "ActivityLogHandler"
	KeyNoCacheHandler     = "NoCacheHandler"
	KeyTextEditProcessor  = "TextEditProcessor"
)

const legacyPackage = "org.wso2.carbon.registry.core.jdbc.handlers."

// Deps are the runtime services built-in handlers write to.
type Deps struct {
	Recorder       ActivityRecorder
	NoCache        NoCacheRegistrar
	RemoteInstance func(id string) (descriptor.RemoteInstance, bool)
}

// RegisterFilters adds the built-in filters to r.
func RegisterFilters(r *plugin.Registry[Filter]) error {
	if err := r.Register(KeyURLMatcher, func(props plugin.Properties) (Filter, error) {
		return NewURLMatcher(props)
	}); err != nil {
		return err
	}
	if err := r.Register(KeyMediaTypeMatcher, func(props plugin.Properties) (Filter, error) {
		return NewMediaTypeMatcher(props)
	}); err != nil {
		return err
	}
	if err := r.Alias(legacyPackage+"filters."+KeyURLMatcher, KeyURLMatcher); err != nil {
		return err
	}
	return r.Alias(legacyPackage+"filters."+KeyMediaTypeMatcher, KeyMediaTypeMatcher)
}

// RegisterHandlers adds the built-in handlers to r.
func RegisterHandlers(r *plugin.Registry[Handler], deps Deps) error {
	factories := map[string]plugin.Factory[Handler]{
		KeyMountHandler: newMountHandlerFactory(deps.RemoteInstance),
		KeyActivityLogHandler: func(plugin.Properties) (Handler, error) {
			return NewActivityLogHandler(deps.Recorder), nil
		},
		KeyNoCacheHandler: func(plugin.Properties) (Handler, error) {
			return NewNoCacheHandler(deps.NoCache), nil
		},
	}
	for key, f := range factories {
		if err := r.Register(key, f); err != nil {
			return err
		}
	}
	return r.Alias(legacyPackage+"builtin."+KeyMountHandler, KeyMountHandler)
}

// RegisterEditProcessors adds the built-in edit processors to r.
func RegisterEditProcessors(r *plugin.Registry[EditProcessor]) error {
	return r.Register(KeyTextEditProcessor, newTextEditProcessor)
}
