package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"conversation-service/internal/events"
)

// SendMessage appends a message to the conversation on behalf of the caller.
// The append commits atomically with the latest-message pointer move and the
// participant read-flag flips; events go out only after the commit.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversation_id")

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, conv, err := h.msgRepo.AppendMessage(c.Request.Context(), conversationID, userID, req.Body)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not send message")
		c.JSON(statusForRepoError(err), gin.H{"error": "could not send message"})
		return
	}

	h.bus.Publish(events.MessageSent{
		Message:        msg,
		ConversationID: conversationID,
		ParticipantIDs: conv.ParticipantIDs(),
	})
	h.bus.Publish(events.ConversationUpdated{Conversation: conv})
	h.emitAudit(c, "INFO", "message sent")
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns the conversation's messages, newest first. Only
// participants may read them.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversation_id")

	conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(statusForRepoError(err), gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		h.emitAudit(c, "ERROR", "not a conversation participant")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	msgs, err := h.msgRepo.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
