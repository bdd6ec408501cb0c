package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"conversation-service/internal/repositories"
)

// callerID returns the authenticated user id, writing a 401 response when the
// request carries no identity.
func callerID(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return "", false
	}
	return userID, true
}

func statusForRepoError(err error) int {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrEmptyParticipants):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrTxConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
