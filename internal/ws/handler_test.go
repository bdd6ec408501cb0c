package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation-service/internal/events"
	"conversation-service/internal/mocks"
	"conversation-service/internal/models"
)

type wsFixture struct {
	url      string
	bus      *events.Bus
	convRepo *mocks.ConversationRepositoryMock
	verifier *mocks.VerifierMock
}

func setupWS(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		bus:      events.NewBus(),
		convRepo: new(mocks.ConversationRepositoryMock),
		verifier: new(mocks.VerifierMock),
	}
	t.Cleanup(f.bus.Close)

	router := gin.New()
	router.GET("/ws", NewSessionHandler(f.bus, f.convRepo, f.verifier).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return f
}

func newTestContext(t *testing.T, target string, headers map[string]string) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func (f *wsFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, bus *events.Bus, kind events.Kind, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bus.SubscriberCount(kind) == n
	}, time.Second, 5*time.Millisecond)
}

func readWire(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(payload)
}

func TestSessionReceivesVisibleEvents(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "tok-a").Return("user-a", nil).Once()

	conn := f.dial(t, "?token=tok-a&kinds=message_sent")
	waitForSubscribers(t, f.bus, events.KindMessageSent, 1)

	// not for user-a, must be filtered out
	f.bus.Publish(events.MessageSent{
		Message:        models.Message{ID: "msg-other", ConversationID: "conv-9", SenderID: "user-c", Body: "x"},
		ConversationID: "conv-9",
		ParticipantIDs: []string{"user-c", "user-d"},
	})
	f.bus.Publish(events.MessageSent{
		Message:        models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "user-b", Body: "hi"},
		ConversationID: "conv-1",
		ParticipantIDs: []string{"user-a", "user-b"},
	})

	payload := readWire(t, conn)
	assert.Contains(t, payload, `"message_sent"`)
	assert.Contains(t, payload, "msg-1")
	assert.NotContains(t, payload, "msg-other")
}

func TestSessionConversationNarrowing(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "tok-a").Return("user-a", nil).Once()
	f.convRepo.On("IsParticipant", mock.Anything, "conv-1", "user-a").Return(true, nil).Once()

	conn := f.dial(t, "?token=tok-a&conversation_id=conv-1&kinds=message_sent")
	waitForSubscribers(t, f.bus, events.KindMessageSent, 1)

	// user-a participates here too, but the session is narrowed to conv-1
	f.bus.Publish(events.MessageSent{
		Message:        models.Message{ID: "msg-wide", ConversationID: "conv-2", SenderID: "user-b", Body: "x"},
		ConversationID: "conv-2",
		ParticipantIDs: []string{"user-a", "user-b"},
	})
	f.bus.Publish(events.MessageSent{
		Message:        models.Message{ID: "msg-narrow", ConversationID: "conv-1", SenderID: "user-b", Body: "y"},
		ConversationID: "conv-1",
		ParticipantIDs: []string{"user-a", "user-b"},
	})

	payload := readWire(t, conn)
	assert.Contains(t, payload, "msg-narrow")
	assert.NotContains(t, payload, "msg-wide")
}

func TestSessionCloseReleasesSubscriptions(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "tok-a").Return("user-a", nil).Once()

	conn := f.dial(t, "?token=tok-a")
	for _, kind := range events.Kinds() {
		waitForSubscribers(t, f.bus, kind, 1)
	}

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	for _, kind := range events.Kinds() {
		waitForSubscribers(t, f.bus, kind, 0)
	}
}

func TestHandshakeMissingToken(t *testing.T) {
	f := setupWS(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeInvalidToken(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "bad").Return("", errors.New("invalid token")).Once()

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?token=bad", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeNotParticipant(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "tok-a").Return("user-a", nil).Once()
	f.convRepo.On("IsParticipant", mock.Anything, "conv-1", "user-a").Return(false, nil).Once()

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?token=tok-a&conversation_id=conv-1", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandshakeUnknownKind(t *testing.T) {
	f := setupWS(t)
	f.verifier.On("Verify", mock.Anything, "tok-a").Return("user-a", nil).Once()

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?token=tok-a&kinds=nonsense", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerTokenSources(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := newTestContext(t, "/ws?token=query-token", nil)
	assert.Equal(t, "query-token", bearerToken(c))

	c = newTestContext(t, "/ws", map[string]string{"Authorization": "Bearer header-token"})
	assert.Equal(t, "header-token", bearerToken(c))

	// a malformed header wins over the query fallback
	c = newTestContext(t, "/ws?token=query-token", map[string]string{"Authorization": "garbage"})
	assert.Equal(t, "", bearerToken(c))
}
