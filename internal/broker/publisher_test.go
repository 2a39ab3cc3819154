package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	cases := map[string]Options{
		"disabled":         {Backend: "none"},
		"amqp without url": {Backend: "amqp"},
		"kafka no brokers": {Backend: "kafka", KafkaTopic: "chat.events"},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewPublisher(opts)
			assert.Equal(t, "noop", PublisherMode(p))
			assert.NotEmpty(t, PublisherNoopReason(p))
			require.NoError(t, p.Publish(context.Background(), "message.created", map[string]string{"id": "m1"}))
			require.NoError(t, p.Close())
		})
	}
}

func TestHeadersFromContext(t *testing.T) {
	ctx := WithHeaders(context.Background(), map[string]string{"x-request-id": "req-1", "empty": ""})
	ctx = WithHeaders(ctx, map[string]string{"x-user-id": "u1"})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	headers := HeadersFromContext(ctx)
	assert.Equal(t, map[string]string{
		"x-request-id": "req-1",
		"x-user-id":    "u1",
		"trace_id":     "4bf92f3577b34da6a3ce929d0e0e4736",
	}, headers)
}
