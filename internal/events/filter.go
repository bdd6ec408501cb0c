package events

import "github.com/samber/lo"

// Visible reports whether the viewer is allowed to receive the event.
// conversationID narrows message_sent delivery to a single conversation; the
// empty string matches any conversation the viewer belongs to. The decision
// uses only data carried on the event, never storage.
func Visible(e Event, viewerID string, conversationID string) bool {
	switch ev := e.(type) {
	case ConversationCreated:
		return ev.Conversation.HasParticipant(viewerID)
	case ConversationUpdated:
		return ev.Conversation.HasParticipant(viewerID)
	case ConversationDeleted:
		return lo.Contains(ev.ParticipantIDs, viewerID)
	case MessageSent:
		if conversationID != "" && ev.ConversationID != conversationID {
			return false
		}
		return lo.Contains(ev.ParticipantIDs, viewerID)
	default:
		return false
	}
}
