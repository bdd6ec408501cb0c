package events

import "conversation-service/internal/models"

// Kind identifies a domain event variant.
type Kind string

const (
	KindConversationCreated Kind = "conversation_created"
	KindConversationUpdated Kind = "conversation_updated"
	KindConversationDeleted Kind = "conversation_deleted"
	KindMessageSent         Kind = "message_sent"
)

// Kinds lists every event kind a session may subscribe to.
func Kinds() []Kind {
	return []Kind{
		KindConversationCreated,
		KindConversationUpdated,
		KindConversationDeleted,
		KindMessageSent,
	}
}

// Event is an immutable notification of a completed state change. Every
// variant carries the participant ids needed for visibility decisions, so
// filtering never reads storage.
type Event interface {
	Kind() Kind
}

// ConversationCreated announces a new conversation to its participants.
type ConversationCreated struct {
	Conversation models.Conversation
}

func (ConversationCreated) Kind() Kind { return KindConversationCreated }

// ConversationUpdated carries the post-change conversation snapshot, emitted
// when the roster or the latest message changes.
type ConversationUpdated struct {
	Conversation models.Conversation
}

func (ConversationUpdated) Kind() Kind { return KindConversationUpdated }

// ConversationDeleted carries the roster captured before deletion; after the
// delete commits, the participants can no longer be queried.
type ConversationDeleted struct {
	ConversationID string
	ParticipantIDs []string
}

func (ConversationDeleted) Kind() Kind { return KindConversationDeleted }

// MessageSent announces a newly appended message.
type MessageSent struct {
	Message        models.Message
	ConversationID string
	ParticipantIDs []string
}

func (MessageSent) Kind() Kind { return KindMessageSent }
