package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"junqo-chat/internal/services"
	"junqo-chat/internal/telemetry"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	service *services.MessagingService
	audit   *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler. audit may be nil.
func NewConversationHandler(service *services.MessagingService, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{service: service, audit: audit}
}

// CreateConversation creates a conversation, or returns the existing one for an untitled pair.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		ParticipantIDs []string `json:"participantIds" binding:"required,min=1"`
		Title          *string  `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, created, err := h.service.CreateConversation(c.Request.Context(), c.GetString("userID"), req.ParticipantIDs, req.Title)
	if err != nil {
		emitAudit(c, h.audit, "conversation.create", "", "", err)
		respondError(c, err, "could not create conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		emitAudit(c, h.audit, "conversation.create", conv.ID, "", nil)
	}
	c.JSON(status, conv)
}

// ListConversations returns the conversations of the authenticated user.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	list, err := h.service.ListConversations(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// GetConversation returns one conversation.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.service.GetConversation(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"))
	if err != nil {
		respondError(c, err, "failed to load conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}
