package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"conversation-service/internal/events"
	"conversation-service/internal/models"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// wireEvent is the JSON envelope forwarded to subscribers.
type wireEvent struct {
	Type           string               `json:"type"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	ParticipantIDs []string             `json:"participant_ids,omitempty"`
	Message        *models.Message      `json:"message,omitempty"`
}

func encodeEvent(e events.Event) ([]byte, error) {
	env := wireEvent{Type: string(e.Kind())}
	switch ev := e.(type) {
	case events.ConversationCreated:
		conv := ev.Conversation
		env.Conversation = &conv
	case events.ConversationUpdated:
		conv := ev.Conversation
		env.Conversation = &conv
	case events.ConversationDeleted:
		env.ConversationID = ev.ConversationID
		env.ParticipantIDs = ev.ParticipantIDs
	case events.MessageSent:
		msg := ev.Message
		env.Message = &msg
		env.ConversationID = ev.ConversationID
	}
	return json.Marshal(env)
}

// parseKinds resolves the kinds query parameter; empty means every kind.
func parseKinds(raw string) ([]events.Kind, error) {
	if raw == "" {
		return events.Kinds(), nil
	}

	var kinds []events.Kind
	for _, part := range strings.Split(raw, ",") {
		kind := events.Kind(strings.TrimSpace(part))
		if !lo.Contains(events.Kinds(), kind) {
			return nil, fmt.Errorf("unknown event kind %q", part)
		}
		kinds = append(kinds, kind)
	}
	return lo.Uniq(kinds), nil
}
