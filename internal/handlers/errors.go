package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"junqo-chat/internal/repositories"
	"junqo-chat/internal/services"
)

// respondError maps service and repository errors onto HTTP statuses.
// Unknown errors are logged and reported as fallback.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotParticipant), errors.Is(err, services.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrConversationNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidContent),
		errors.Is(err, services.ErrInvalidParticipants),
		errors.Is(err, services.ErrMessageMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("request failed: method=%s path=%s request_id=%s err=%v", c.Request.Method, c.FullPath(), requestIDFromContext(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
