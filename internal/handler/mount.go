package handler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/plugin"
)

// Request properties set by MountHandler.
const (
	PropMountPath      = "mount.path"
	PropRemoteInstance = "mount.remoteInstance"
	PropRemoteURL      = "mount.remoteURL"
)

// ErrReadOnlyMount is returned for writes through a mount whose remote
// instance is read-only.
var ErrReadOnlyMount = errors.New("mount target is read-only")

// MountHandler redirects requests under a mount path to the target path on
// the mount's remote instance.
type MountHandler struct {
	mount  descriptor.Mount
	remote descriptor.RemoteInstance
}

// NewMountHandler creates the handler for m served by remote.
func NewMountHandler(m descriptor.Mount, remote descriptor.RemoteInstance) *MountHandler {
	return &MountHandler{mount: m, remote: remote}
}

// MountFilter matches the mount path and everything below it.
func MountFilter(m descriptor.Mount) (*URLMatcher, error) {
	return MatchAll(regexp.QuoteMeta(m.Path) + "(/.*)?")
}

// Name identifies the handler in listings.
func (h *MountHandler) Name() string {
	return KeyMountHandler + "(" + h.mount.Path + ")"
}

// Mount returns the handled mount.
func (h *MountHandler) Mount() descriptor.Mount {
	return h.mount
}

// Handle implements Handler. Queries are left to the local registry unless
// the mount allows them, and virtual mounts keep writes local.
func (h *MountHandler) Handle(rc *RequestContext) error {
	if rc.Method == method.ExecuteQuery && !h.mount.ExecuteQueryAllowed {
		return nil
	}
	write := !rc.Method.IsRead()
	if write && h.mount.Virtual {
		return nil
	}
	if write && h.remote.ReadOnly {
		return fmt.Errorf("%s %s via %q: %w", rc.Method, rc.Path, h.remote.ID, ErrReadOnlyMount)
	}

	target, ok := h.translate(rc.Path)
	if !ok {
		return nil
	}
	rc.ActualPath = target
	if p, ok := h.translate(rc.SourcePath); ok {
		rc.SourcePath = p
	}
	if p, ok := h.translate(rc.TargetPath); ok {
		rc.TargetPath = p
	}
	rc.SetProperty(PropMountPath, h.mount.Path)
	rc.SetProperty(PropRemoteInstance, h.remote.ID)
	rc.SetProperty(PropRemoteURL, h.remote.URL)
	rc.SetProcessingComplete(true)

	log.Debug(log.CatMount, "request redirected to mount target",
		"path", rc.Path, "target", target, "instance", h.remote.ID)
	return nil
}

// translate maps a path at or below the mount path onto the target path.
func (h *MountHandler) translate(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	rel, ok := strings.CutPrefix(p, h.mount.Path)
	if !ok || (rel != "" && !strings.HasPrefix(rel, "/")) {
		return "", false
	}
	return strings.TrimSuffix(h.mount.TargetPath, "/") + rel, true
}

type mountConfig struct {
	Path                string `mapstructure:"path"`
	InstanceID          string `mapstructure:"instanceId"`
	TargetPath          string `mapstructure:"targetPath"`
	Virtual             bool   `mapstructure:"virtual"`
	ExecuteQueryAllowed *bool  `mapstructure:"executeQueryAllowed"`
}

func newMountHandlerFactory(remotes func(id string) (descriptor.RemoteInstance, bool)) plugin.Factory[Handler] {
	return func(props plugin.Properties) (Handler, error) {
		var cfg mountConfig
		if err := props.Decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" || cfg.TargetPath == "" || cfg.InstanceID == "" {
			return nil, errors.New("path, targetPath and instanceId properties are required")
		}
		var remote descriptor.RemoteInstance
		var ok bool
		if remotes != nil {
			remote, ok = remotes(cfg.InstanceID)
		}
		if !ok {
			return nil, fmt.Errorf("remote instance %q: %w", cfg.InstanceID, descriptor.ErrUnknownReference)
		}
		m := descriptor.Mount{
			Path:                cfg.Path,
			InstanceID:          cfg.InstanceID,
			TargetPath:          cfg.TargetPath,
			Virtual:             cfg.Virtual,
			ExecuteQueryAllowed: cfg.ExecuteQueryAllowed == nil || *cfg.ExecuteQueryAllowed,
		}
		return NewMountHandler(m, remote), nil
	}
}
