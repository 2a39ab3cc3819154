package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"junqo-chat/internal/services"
	"junqo-chat/internal/telemetry"
)

// MessageHandler manages message endpoints. Writes go through the messaging
// service, which broadcasts them to the conversation room.
type MessageHandler struct {
	service *services.MessagingService
	audit   *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler. audit may be nil.
func NewMessageHandler(service *services.MessagingService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{service: service, audit: audit}
}

// ListMessages returns a page of messages, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return
		}
		before = parsed
	}

	history, err := h.service.History(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), limit, before)
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history.Messages})
}

// PostMessage stores a message and relays it to connected participants.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), req.Content, "")
	if err != nil {
		emitAudit(c, h.audit, "message.create", c.Param("conversation_id"), "", err)
		respondError(c, err, "could not create message")
		return
	}
	emitAudit(c, h.audit, "message.create", msg.ConversationID, msg.ID, nil)
	c.JSON(http.StatusCreated, msg)
}

// UpdateMessage edits a message owned by the caller.
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.UpdateMessage(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), c.Param("message_id"), req.Content, "")
	emitAudit(c, h.audit, "message.update", c.Param("conversation_id"), c.Param("message_id"), err)
	if err != nil {
		respondError(c, err, "could not update message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage tombstones a message owned by the caller.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	err := h.service.DeleteMessage(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), c.Param("message_id"), "")
	emitAudit(c, h.audit, "message.delete", c.Param("conversation_id"), c.Param("message_id"), err)
	if err != nil {
		respondError(c, err, "could not delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead records a read receipt for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), c.Param("message_id"), ""); err != nil {
		respondError(c, err, "could not mark message read")
		return
	}
	c.Status(http.StatusNoContent)
}
