package tracing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the trace id back to HTTP clients.
const TraceHeader = "X-Trace-Id"

// Middleware starts a server span per request, named after the matched chi
// route once routing has finished.
func Middleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/zjrosen/regd/internal/httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), SpanHTTP, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if id := TraceID(ctx); id != "" {
			w.Header().Set(TraceHeader, id)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String(AttrHTTPMethod, r.Method),
			attribute.String(AttrHTTPRoute, route),
			attribute.Int(AttrHTTPStatus, status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
