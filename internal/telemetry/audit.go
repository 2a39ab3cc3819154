package telemetry

import (
	"context"
	"log"
	"time"

	"junqo-chat/internal/broker"
)

// AuditEmitter publishes audit records for conversation and message writes.
type AuditEmitter struct {
	publisher   broker.Publisher
	routingKey  string
	service     string
	environment string
}

// AuditRecord describes one audited action.
type AuditRecord struct {
	Level          string
	Action         string
	ConversationID string
	MessageID      string
	Detail         string
	RequestID      string
	ActorID        *string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher broker.Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Record publishes rec. Publish failures are logged only.
func (e *AuditEmitter) Record(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	log.Printf("audit: level=%s action=%s conversation_id=%s message_id=%s request_id=%s user_id=%s",
		rec.Level, rec.Action, orDash(rec.ConversationID), orDash(rec.MessageID), rec.RequestID, derefOr(rec.ActorID, "-"))

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        rec.ActorID,
		Payload: AuditPayload{
			Level:          rec.Level,
			Action:         rec.Action,
			ConversationID: rec.ConversationID,
			MessageID:      rec.MessageID,
			Detail:         rec.Detail,
		},
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: action=%s err=%v", rec.Action, err)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
