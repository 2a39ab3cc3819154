package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"junqo-chat/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "junqo-chat", "test")
	userID := "u1"

	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.Service == "junqo-chat" &&
			env.Environment == "test" &&
			env.RequestID == "req-1" &&
			env.UserID != nil && *env.UserID == "u1" &&
			env.Payload.Level == "INFO" &&
			env.Payload.Action == "conversation.create" &&
			env.Payload.ConversationID == "c1"
	})).Return(nil).Once()

	emitter.Record(context.Background(), AuditRecord{
		Action:         "conversation.create",
		ConversationID: "c1",
		RequestID:      "req-1",
		ActorID:        &userID,
	})

	publisher.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "junqo-chat", "test")
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(errors.New("down")).Once()

	assert.NotPanics(t, func() {
		emitter.Record(context.Background(), AuditRecord{Level: "ERROR", Action: "message.delete"})
	})
	publisher.AssertExpectations(t)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Record(context.Background(), AuditRecord{Action: "noop"})
	})
}
