package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"conversation-service/internal/events"
	"conversation-service/internal/repositories"
	"conversation-service/internal/telemetry"
)

// ConversationHandler manages conversation command and read endpoints. Every
// command publishes its domain event only after the transaction committed.
type ConversationHandler struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	bus      *events.Bus
	audit    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, bus *events.Bus, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		bus:      bus,
		audit:    audit,
	}
}

// CreateConversation handles POST /conversations. The caller is always part
// of the roster, whether or not the request lists it.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req struct {
		ParticipantIDs []string `json:"participant_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participantIDs := req.ParticipantIDs
	if !lo.Contains(participantIDs, userID) {
		participantIDs = append(participantIDs, userID)
	}

	conv, err := h.convRepo.CreateConversation(c.Request.Context(), userID, participantIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create conversation")
		c.JSON(statusForRepoError(err), gin.H{"error": "could not create conversation"})
		return
	}

	h.bus.Publish(events.ConversationCreated{Conversation: conv})
	h.emitAudit(c, "INFO", "conversation created")
	c.JSON(http.StatusCreated, conv)
}

// ListConversations returns the conversations the caller participates in.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	convs, err := h.convRepo.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// MarkConversationAsRead marks the caller's own read-state. Only a
// participant of the conversation may do so, and only for itself; no event is
// published for this private state change.
func (h *ConversationHandler) MarkConversationAsRead(c *gin.Context) {
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

	if err := h.convRepo.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		c.JSON(statusForRepoError(err), gin.H{"error": "could not mark conversation as read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteConversation removes the conversation with all its participants and
// messages, then notifies the pre-delete roster.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
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

	snapshot, err := h.convRepo.DeleteConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not delete conversation")
		c.JSON(statusForRepoError(err), gin.H{"error": "could not delete conversation"})
		return
	}

	h.bus.Publish(events.ConversationDeleted{
		ConversationID: snapshot.ID,
		ParticipantIDs: snapshot.ParticipantIDs(),
	})
	h.emitAudit(c, "INFO", "conversation deleted")
	c.Status(http.StatusNoContent)
}
