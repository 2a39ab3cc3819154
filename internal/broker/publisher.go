package broker

import (
	"context"
	"log"
)

// Publisher publishes domain, audit and websocket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Options selects and configures the publisher backend.
type Options struct {
	Backend      string
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewPublisher builds the configured publisher, falling back to a noop
// publisher when the backend is disabled or unreachable.
func NewPublisher(opts Options) Publisher {
	switch opts.Backend {
	case "kafka":
		return NewKafkaPublisher(opts.KafkaBrokers, opts.KafkaTopic)
	case "amqp":
		return NewAMQPPublisher(opts.AMQPURL, opts.AMQPExchange)
	default:
		return disabled(opts.Backend, "backend disabled")
	}
}

func disabled(backend, reason string) noopPublisher {
	log.Printf("event broker disabled, using noop: backend=%q reason=%s", backend, reason)
	return noopPublisher{reason: reason}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	log.Printf("broker noop publish routing_key=%s", routingKey)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case *kafkaPublisher:
		return "kafka"
	case noopPublisher, *noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason reports why a noop publisher is in use.
func PublisherNoopReason(p Publisher) string {
	switch publisher := p.(type) {
	case noopPublisher:
		return publisher.reason
	case *noopPublisher:
		return publisher.reason
	default:
		return ""
	}
}
