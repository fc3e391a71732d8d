// Package httpapi serves the read-only admin API over a live registry
// context.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/presentation"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/tenant"
	"github.com/zjrosen/regd/internal/tracing"
)

// DefaultLogLimit caps /api/v1/logs when no limit is given.
const DefaultLogLimit = 100

// ErrNotReady is returned while no context has been built.
var ErrNotReady = errors.New("registry context not ready")

// Source supplies the current context. Implementations swap contexts on
// reload; handlers call Current once per request.
type Source interface {
	Current() *regctx.Context
	Warnings() descriptor.Warnings
	Reload(ctx context.Context) error
}

// Config configures the server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Tokens          *TokenService
}

// Server is the admin HTTP server.
type Server struct {
	src     Source
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a server over src. With a nil m, /metrics serves the
// default Prometheus registry.
func New(src Source, cfg Config, m *metrics.Metrics) *Server {
	return &Server{src: src, cfg: cfg, metrics: m}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(tracing.Middleware)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAuth(s.cfg.Tokens))
		r.Get("/config", s.withContext(s.handleConfig))
		r.Get("/config/export", s.withContext(s.handleExport))
		r.Get("/mounts", s.withContext(func(w http.ResponseWriter, _ *http.Request, c *regctx.Context) {
			writeJSON(w, http.StatusOK, presentation.Mounts(c))
		}))
		r.Get("/remotes", s.withContext(func(w http.ResponseWriter, _ *http.Request, c *regctx.Context) {
			writeJSON(w, http.StatusOK, presentation.Remotes(c))
		}))
		r.Get("/handlers", s.withContext(func(w http.ResponseWriter, _ *http.Request, c *regctx.Context) {
			writeJSON(w, http.StatusOK, presentation.Handlers(c))
		}))
		r.Get("/aspects", s.withContext(s.handleAspects))
		r.Get("/aspects/{name}", s.withContext(s.handleAspect))
		r.Get("/logs", s.withContext(s.handleLogs))
		r.Post("/reload", s.handleReload)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug(log.CatHTTP, "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type contextHandler func(w http.ResponseWriter, r *http.Request, c *regctx.Context)

func (s *Server) withContext(h contextHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := s.src.Current()
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, ErrNotReady)
			return
		}
		h(w, r.WithContext(regctx.WithContext(r.Context(), c)), c)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	c := s.src.Current()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNotReady)
		return
	}
	writeJSON(w, http.StatusOK, presentation.Summary(c, s.src.Warnings()))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request, c *regctx.Context) {
	d := c.Descriptor().Redacted()
	if wantsYAML(r) {
		data, err := descriptor.MarshalYAML(d)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeBytes(w, "application/yaml", data)
		return
	}
	data, err := descriptor.MarshalJSON(d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeBytes(w, "application/json", data)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request, c *regctx.Context) {
	var buf bytes.Buffer
	if err := c.ExportXML(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeBytes(w, "application/xml", buf.Bytes())
}

func (s *Server) handleAspects(w http.ResponseWriter, r *http.Request, c *regctx.Context) {
	tenantID, err := tenantParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.Aspects(c, tenantID))
}

func (s *Server) handleAspect(w http.ResponseWriter, r *http.Request, c *regctx.Context) {
	tenantID, err := tenantParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	for _, a := range presentation.Aspects(c, tenantID) {
		if a.Name == name {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("aspect %q not found", name))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, c *regctx.Context) {
	q, err := parseLogQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dam, err := c.DataAccess(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	records, err := dam.Logs().Logs(r.Context(), q)
	if err != nil {
		log.ErrorErr(log.CatHTTP, "Failed to query logs", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.Logs(records))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.src.Reload(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	c := s.src.Current()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNotReady)
		return
	}
	log.Info(log.CatHTTP, "Reloaded via API", "subject", Subject(r.Context()))
	writeJSON(w, http.StatusOK, presentation.Summary(c, s.src.Warnings()))
}

func tenantParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("tenant")
	if raw == "" {
		return tenant.SuperID, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid tenant %q", raw)
	}
	return id, nil
}

func parseLogQuery(r *http.Request) (dataaccess.LogQuery, error) {
	values := r.URL.Query()
	q := dataaccess.NewLogQuery()
	q.Path = values.Get("path")
	q.User = values.Get("user")
	q.Limit = DefaultLogLimit
	q.Ascending = values.Get("order") == "asc"

	if raw := values.Get("action"); raw != "" {
		a, ok := dataaccess.ParseAction(raw)
		if !ok {
			return q, fmt.Errorf("invalid action %q", raw)
		}
		q.Action = a
	}
	if raw := values.Get("tenant"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("invalid tenant %q", raw)
		}
		q.TenantID = id
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = n
	}
	for key, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := values.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("invalid %s %q: want RFC 3339", key, raw)
		}
		*dst = t
	}
	return q, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info(log.CatHTTP, "Admin API listening", "addr", ln.Addr().String(), "auth", s.cfg.Tokens != nil)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down admin API: %w", err)
	}
	log.Info(log.CatHTTP, "Admin API stopped")
	return nil
}
