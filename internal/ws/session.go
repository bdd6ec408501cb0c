package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"conversation-service/internal/events"
	"conversation-service/internal/observability"
)

// Session binds one viewer identity to a set of event subscriptions for the
// lifetime of a websocket connection. Events failing the visibility check for
// the viewer are dropped silently. All subscriptions are released on every
// exit path.
type Session struct {
	conn     *websocket.Conn
	viewerID string
	// conversationID narrows message_sent delivery to one conversation;
	// empty delivers for every conversation the viewer belongs to.
	conversationID string
	subs           []*events.Subscription

	writeMu   sync.Mutex
	closeOnce sync.Once
	onClose   func(reason string)
}

func newSession(conn *websocket.Conn, viewerID, conversationID string, subs []*events.Subscription) *Session {
	return &Session{
		conn:           conn,
		viewerID:       viewerID,
		conversationID: conversationID,
		subs:           subs,
	}
}

// run starts one forwarding goroutine per subscription, then blocks reading
// the connection until the peer goes away.
func (s *Session) run() {
	for _, sub := range s.subs {
		go s.forward(sub)
	}

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			reason := err.Error()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ""
			}
			s.close(reason)
			return
		}
	}
}

func (s *Session) forward(sub *events.Subscription) {
	for ev := range sub.Events() {
		if !events.Visible(ev, s.viewerID, s.conversationID) {
			continue
		}

		payload, err := encodeEvent(ev)
		if err != nil {
			log.Printf("event encode error: %v", err)
			continue
		}
		if err := s.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			s.close(err.Error())
			return
		}
		observability.IncWSEvent(string(ev.Kind()))
	}
}

// write serializes access to the connection: gorilla allows one concurrent
// writer only.
func (s *Session) write(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// close cancels every subscription and closes the connection. Runs once no
// matter which exit path gets here first.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Cancel()
		}
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(reason)
		}
	})
}
