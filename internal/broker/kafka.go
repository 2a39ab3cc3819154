package broker

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaPublisher builds a Kafka publisher writing every event to one topic,
// keyed by routing key.
func NewKafkaPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return disabled("kafka", "no bootstrap servers")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Printf("kafka async publish failed: count=%d err=%v", len(messages), err)
			}
		},
	}
	log.Printf("kafka writer ready brokers=%s topic=%s", strings.Join(brokers, ","), topic)
	return &kafkaPublisher{w: w}
}

type kafkaPublisher struct {
	w *kafka.Writer
}

func (p *kafkaPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var headers []kafka.Header
	for key, value := range HeadersFromContext(ctx) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(routingKey),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		log.Printf("kafka publish failed: %v", err)
	}
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.w.Close()
}
