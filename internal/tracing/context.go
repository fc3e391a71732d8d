package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the hex trace id of the span in ctx, or "" when ctx
// carries no valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
