package tracing

// Span attribute keys shared across packages.
const (
	AttrDescriptorSource = "descriptor.source"
	AttrDescriptorFormat = "descriptor.format"
	AttrNodeID           = "regd.node_id"
	AttrTenantID         = "registry.tenant"
	AttrMethod           = "registry.method"
	AttrPath             = "registry.path"
	AttrHTTPRoute        = "http.route"
	AttrHTTPMethod       = "http.request.method"
	AttrHTTPStatus       = "http.response.status_code"
	AttrEventTopic       = "messaging.destination.name"
)

// Span names.
const (
	SpanLoad   = "descriptor.load"
	SpanBuild  = "regctx.build"
	SpanReload = "app.reload"
	SpanHTTP   = "http.request"
)
