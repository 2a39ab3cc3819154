package observability

import (
	"context"

	"junqo-chat/internal/broker"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

var defaultPublisher broker.Publisher

// SetPublisher installs the publisher used by PublishEvent.
func SetPublisher(publisher broker.Publisher) {
	defaultPublisher = publisher
}

// PublishEvent publishes an operational event; it is a no-op until SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(broker.WithHeaders(ctx, headers), routingKey, message)
	if err != nil {
		IncBrokerPublishError()
	}
	return err
}
