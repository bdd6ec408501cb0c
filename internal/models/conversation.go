package models

import (
	"time"

	"github.com/samber/lo"
)

// Conversation is a group of participants sharing an ordered message history.
// LatestMessage points at the newest message, or is nil for a fresh conversation.
type Conversation struct {
	ID              string        `db:"id" json:"id"`
	LatestMessageID *string       `db:"latest_message_id" json:"latest_message_id,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	Participants    []Participant `json:"participants"`
	LatestMessage   *Message      `json:"latest_message,omitempty"`
}

// Participant is one user's membership record within one conversation.
// There is exactly one record per (conversation, user) pair.
type Participant struct {
	ConversationID       string `db:"conversation_id" json:"conversation_id"`
	UserID               string `db:"user_id" json:"user_id"`
	HasSeenLatestMessage bool   `db:"has_seen_latest_message" json:"has_seen_latest_message"`
}

// ParticipantIDs projects the roster to its user ids.
func (c Conversation) ParticipantIDs() []string {
	return lo.Map(c.Participants, func(p Participant, _ int) string { return p.UserID })
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return lo.ContainsBy(c.Participants, func(p Participant) bool { return p.UserID == userID })
}
