package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"junqo-chat/internal/middleware"
	"junqo-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// userIDFromContext returns the id set by the auth middleware, if any.
func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString("userID"); userID != "" {
		return &userID
	}
	return nil
}

// emitAudit records a write on the conversation. Errors carry their text as detail.
func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, action, conversationID, messageID string, err error) {
	rec := telemetry.AuditRecord{
		Level:          "INFO",
		Action:         action,
		ConversationID: conversationID,
		MessageID:      messageID,
		RequestID:      requestIDFromContext(c),
		ActorID:        userIDFromContext(c),
	}
	if err != nil {
		rec.Level = "ERROR"
		rec.Detail = err.Error()
	}
	audit.Record(c.Request.Context(), rec)
}
