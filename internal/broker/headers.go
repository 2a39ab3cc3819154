package broker

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type headersKey struct{}

// WithHeaders attaches message headers to ctx; publishers copy them onto every
// message published with that context.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	merged := map[string]string{}
	for k, v := range HeadersFromContext(ctx) {
		merged[k] = v
	}
	for k, v := range headers {
		if v != "" {
			merged[k] = v
		}
	}
	return context.WithValue(ctx, headersKey{}, merged)
}

// HeadersFromContext returns the headers attached with WithHeaders plus the
// trace id of the active span, if any.
func HeadersFromContext(ctx context.Context) map[string]string {
	headers := map[string]string{}
	if stored, ok := ctx.Value(headersKey{}).(map[string]string); ok {
		for k, v := range stored {
			headers[k] = v
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		if _, ok := headers["trace_id"]; !ok {
			headers["trace_id"] = sc.TraceID().String()
		}
	}
	return headers
}
