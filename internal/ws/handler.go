package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conversation-service/internal/events"
	"conversation-service/internal/identity"
	"conversation-service/internal/observability"
	"conversation-service/internal/repositories"
)

// SessionHandler upgrades client connections into subscription sessions.
type SessionHandler struct {
	bus      *events.Bus
	convRepo repositories.ConversationRepository
	verifier identity.Verifier
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(bus *events.Bus, convRepo repositories.ConversationRepository, verifier identity.Verifier) *SessionHandler {
	return &SessionHandler{bus: bus, convRepo: convRepo, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, upgrades the connection and registers the
// session's subscriptions on the bus.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("conversation-service/ws").Start(
		c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	viewerID, err := h.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conversationID := c.Query("conversation_id")
	if conversationID != "" {
		member, err := h.convRepo.IsParticipant(ctx, conversationID, viewerID)
		if err != nil || !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
			return
		}
	}

	kinds, err := parseKinds(c.Query("kinds"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	subs := make([]*events.Subscription, 0, len(kinds))
	for _, kind := range kinds {
		subs = append(subs, h.bus.Subscribe(kind))
	}
	session := newSession(conn, viewerID, conversationID, subs)

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      viewerID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishLifecycle(ctx, "ws_connect", info, "")

	session.onClose = func(reason string) {
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishLifecycle(context.Background(), "ws_disconnect", info, reason)
	}

	go session.run()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":    info.UserID,
				"device_id":  info.DeviceID,
				"ip":         info.IP,
				"request_id": info.RequestID,
				"trace_id":   info.TraceID,
			},
		},
	})
}
