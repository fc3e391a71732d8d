package presentation

import (
	"fmt"
	"time"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/tenant"
)

// SummaryDTO is the overview printed by validate and served at /readyz.
type SummaryDTO struct {
	NodeID          string   `json:"nodeId" yaml:"nodeId"`
	RegistryRoot    string   `json:"registryRoot,omitempty" yaml:"registryRoot,omitempty"`
	ReadOnly        bool     `json:"readOnly" yaml:"readOnly"`
	CacheEnabled    bool     `json:"cacheEnabled" yaml:"cacheEnabled"`
	CurrentDBConfig string   `json:"currentDBConfig" yaml:"currentDBConfig"`
	DBConfigs       []string `json:"dbConfigs" yaml:"dbConfigs"`
	Remotes         int      `json:"remotes" yaml:"remotes"`
	Mounts          int      `json:"mounts" yaml:"mounts"`
	Handlers        int      `json:"handlers" yaml:"handlers"`
	Aspects         int      `json:"aspects" yaml:"aspects"`
	QueryTypes      []string `json:"queryTypes" yaml:"queryTypes"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// MountDTO joins a mount with the remote instance it points at.
type MountDTO struct {
	Path                string `json:"path" yaml:"path"`
	InstanceID          string `json:"instanceId" yaml:"instanceId"`
	TargetPath          string `json:"targetPath" yaml:"targetPath"`
	RemoteURL           string `json:"remoteUrl,omitempty" yaml:"remoteUrl,omitempty"`
	ReadOnly            bool   `json:"readOnly" yaml:"readOnly"`
	Virtual             bool   `json:"virtual" yaml:"virtual"`
	ExecuteQueryAllowed bool   `json:"executeQueryAllowed" yaml:"executeQueryAllowed"`
	CacheID             string `json:"cacheId,omitempty" yaml:"cacheId,omitempty"`
}

// RemoteDTO describes a remote instance. Credentials are never included.
type RemoteDTO struct {
	ID           string `json:"id" yaml:"id"`
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	User         string `json:"user,omitempty" yaml:"user,omitempty"`
	DBConfig     string `json:"dbConfig,omitempty" yaml:"dbConfig,omitempty"`
	ReadOnly     bool   `json:"readOnly" yaml:"readOnly"`
	CacheEnabled bool   `json:"cacheEnabled" yaml:"cacheEnabled"`
	CacheID      string `json:"cacheId,omitempty" yaml:"cacheId,omitempty"`
	RegistryRoot string `json:"registryRoot,omitempty" yaml:"registryRoot,omitempty"`
}

// HandlerDTO is one registration in a handler phase.
type HandlerDTO struct {
	Phase    string   `json:"phase" yaml:"phase"`
	ID       uint64   `json:"id" yaml:"id"`
	Handler  string   `json:"handler" yaml:"handler"`
	Filter   string   `json:"filter" yaml:"filter"`
	Methods  []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Priority bool     `json:"priority" yaml:"priority"`
	TenantID int      `json:"tenantId" yaml:"tenantId"`
}

// AspectDTO names one aspect available to a tenant.
type AspectDTO struct {
	TenantID int      `json:"tenantId" yaml:"tenantId"`
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	States   []string `json:"states,omitempty" yaml:"states,omitempty"`
}

// LogDTO is one REG_LOG record.
type LogDTO struct {
	Path       string    `json:"path" yaml:"path"`
	User       string    `json:"user" yaml:"user"`
	Action     string    `json:"action" yaml:"action"`
	ActionData string    `json:"actionData,omitempty" yaml:"actionData,omitempty"`
	TenantID   int       `json:"tenantId" yaml:"tenantId"`
	LoggedTime time.Time `json:"loggedTime" yaml:"loggedTime"`
}

// Summary describes a built context.
func Summary(c *regctx.Context, warnings descriptor.Warnings) SummaryDTO {
	n := 0
	for _, p := range handler.Phases() {
		n += len(c.HandlerManager().Handlers(p))
	}
	return SummaryDTO{
		NodeID:          c.NodeID(),
		RegistryRoot:    c.RegistryRoot(),
		ReadOnly:        c.IsReadOnly(),
		CacheEnabled:    c.IsCacheEnabled(),
		CurrentDBConfig: c.DefaultDBConfig().Name,
		DBConfigs:       c.DBConfigNames(),
		Remotes:         len(c.RemoteInstances()),
		Mounts:          len(c.Mounts()),
		Handlers:        n,
		Aspects:         len(c.Aspects().Names(tenant.SuperID)),
		QueryTypes:      c.QueryManager().Types(),
		Warnings:        warnings.Strings(),
	}
}

// Mounts lists mounts in descriptor order.
func Mounts(c *regctx.Context) []MountDTO {
	out := make([]MountDTO, 0, len(c.Mounts()))
	for _, m := range c.Mounts() {
		dto := MountDTO{
			Path:                m.Path,
			InstanceID:          m.InstanceID,
			TargetPath:          m.TargetPath,
			Virtual:             m.Virtual,
			ExecuteQueryAllowed: m.ExecuteQueryAllowed,
		}
		if r, ok := c.RemoteInstance(m.InstanceID); ok {
			dto.RemoteURL = r.URL
			dto.ReadOnly = r.ReadOnly
		}
		if id, ok := c.MountCacheID(m); ok {
			dto.CacheID = id
		}
		out = append(out, dto)
	}
	return out
}

// Remotes lists remote instances in descriptor order.
func Remotes(c *regctx.Context) []RemoteDTO {
	out := make([]RemoteDTO, 0, len(c.RemoteInstances()))
	for _, r := range c.RemoteInstances() {
		out = append(out, RemoteDTO{
			ID:           r.ID,
			URL:          r.URL,
			User:         r.TrustedUser,
			DBConfig:     r.DBConfig,
			ReadOnly:     r.ReadOnly,
			CacheEnabled: r.CacheEnabled,
			CacheID:      r.CacheID,
			RegistryRoot: r.RegistryRoot,
		})
	}
	return out
}

// Handlers lists every registration, phase by phase in dispatch order.
func Handlers(c *regctx.Context) []HandlerDTO {
	var out []HandlerDTO
	for _, p := range handler.Phases() {
		for _, h := range c.HandlerManager().Handlers(p) {
			methods := make([]string, 0, len(h.Methods))
			for _, m := range h.Methods {
				methods = append(methods, string(m))
			}
			out = append(out, HandlerDTO{
				Phase:    string(p),
				ID:       uint64(h.ID),
				Handler:  h.Handler,
				Filter:   h.Filter,
				Methods:  methods,
				Priority: h.Priority,
				TenantID: h.TenantID,
			})
		}
	}
	return out
}

// Aspects lists the aspects available to tenantID, sorted by name.
func Aspects(c *regctx.Context, tenantID int) []AspectDTO {
	names := c.Aspects().Names(tenantID)
	out := make([]AspectDTO, 0, len(names))
	for _, name := range names {
		a, _ := c.Aspects().Get(tenantID, name)
		dto := AspectDTO{TenantID: tenantID, Name: name, Type: fmt.Sprintf("%T", a)}
		if s, ok := a.(interface{ States() []string }); ok {
			dto.States = s.States()
		}
		out = append(out, dto)
	}
	return out
}

// Logs converts activity records.
func Logs(records []dataaccess.LogRecord) []LogDTO {
	out := make([]LogDTO, 0, len(records))
	for _, r := range records {
		out = append(out, LogDTO{
			Path:       r.Path,
			User:       r.UserID,
			Action:     r.Action.String(),
			ActionData: r.ActionData,
			TenantID:   r.TenantID,
			LoggedTime: r.LoggedTime,
		})
	}
	return out
}
