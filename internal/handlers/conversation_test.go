package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation-service/internal/events"
	"conversation-service/internal/mocks"
	"conversation-service/internal/models"
	"conversation-service/internal/repositories"
)

type handlerFixture struct {
	router   *gin.Engine
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	bus      *events.Bus
}

func setupHandler(t *testing.T, userID string) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		convRepo: new(mocks.ConversationRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		bus:      events.NewBus(),
	}
	t.Cleanup(f.bus.Close)

	h := NewConversationHandler(f.convRepo, f.msgRepo, f.bus, nil)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("userID", userID)
		}
		c.Next()
	})
	f.router.POST("/conversations", h.CreateConversation)
	f.router.GET("/conversations", h.ListConversations)
	f.router.POST("/conversations/:conversation_id/messages", h.SendMessage)
	f.router.GET("/conversations/:conversation_id/messages", h.ListMessages)
	f.router.POST("/conversations/:conversation_id/read", h.MarkConversationAsRead)
	f.router.DELETE("/conversations/:conversation_id", h.DeleteConversation)
	return f
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func receiveEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a published event")
		return nil
	}
}

func sampleConversation(id string, participantIDs ...string) models.Conversation {
	conv := models.Conversation{ID: id}
	for _, uid := range participantIDs {
		conv.Participants = append(conv.Participants, models.Participant{
			ConversationID: id,
			UserID:         uid,
		})
	}
	return conv
}

func TestCreateConversation(t *testing.T) {
	f := setupHandler(t, "user-a")
	sub := f.bus.Subscribe(events.KindConversationCreated)

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("CreateConversation", mock.Anything, "user-a", []string{"user-b", "user-a"}).
		Return(conv, nil).Once()

	w := f.do(http.MethodPost, "/conversations", `{"participant_ids":["user-b"]}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "conv-1")

	ev := receiveEvent(t, sub)
	created, ok := ev.(events.ConversationCreated)
	require.True(t, ok)
	assert.Equal(t, "conv-1", created.Conversation.ID)
	f.convRepo.AssertExpectations(t)
}

func TestCreateConversationCallerAlreadyListed(t *testing.T) {
	f := setupHandler(t, "user-a")

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("CreateConversation", mock.Anything, "user-a", []string{"user-a", "user-b"}).
		Return(conv, nil).Once()

	w := f.do(http.MethodPost, "/conversations", `{"participant_ids":["user-a","user-b"]}`)

	require.Equal(t, http.StatusCreated, w.Code)
	f.convRepo.AssertExpectations(t)
}

func TestCreateConversationInvalidPayload(t *testing.T) {
	f := setupHandler(t, "user-a")

	w := f.do(http.MethodPost, "/conversations", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.convRepo.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateConversationUnauthenticated(t *testing.T) {
	f := setupHandler(t, "")

	w := f.do(http.MethodPost, "/conversations", `{"participant_ids":["user-b"]}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateConversationRepoFailure(t *testing.T) {
	f := setupHandler(t, "user-a")
	sub := f.bus.Subscribe(events.KindConversationCreated)

	f.convRepo.On("CreateConversation", mock.Anything, "user-a", mock.Anything).
		Return(nil, errors.New("db down")).Once()

	w := f.do(http.MethodPost, "/conversations", `{"participant_ids":["user-b"]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, sub.Events(), "no event on failed create")
}

func TestListConversations(t *testing.T) {
	f := setupHandler(t, "user-a")

	list := []models.Conversation{sampleConversation("conv-1", "user-a", "user-b")}
	f.convRepo.On("ListConversations", mock.Anything, "user-a").Return(list, nil).Once()

	w := f.do(http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "conv-1")
	f.convRepo.AssertExpectations(t)
}

func TestListConversationsRepoFailure(t *testing.T) {
	f := setupHandler(t, "user-a")

	f.convRepo.On("ListConversations", mock.Anything, "user-a").
		Return(nil, errors.New("db down")).Once()

	w := f.do(http.MethodGet, "/conversations", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMarkConversationAsRead(t *testing.T) {
	f := setupHandler(t, "user-a")

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("GetConversation", mock.Anything, "conv-1").Return(conv, nil).Once()
	f.convRepo.On("MarkRead", mock.Anything, "conv-1", "user-a").Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/conv-1/read", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	f.convRepo.AssertExpectations(t)
}

func TestMarkConversationAsReadNotParticipant(t *testing.T) {
	f := setupHandler(t, "user-c")

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("GetConversation", mock.Anything, "conv-1").Return(conv, nil).Once()

	w := f.do(http.MethodPost, "/conversations/conv-1/read", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.convRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkConversationAsReadNotFound(t *testing.T) {
	f := setupHandler(t, "user-a")

	f.convRepo.On("GetConversation", mock.Anything, "missing").
		Return(nil, repositories.ErrConversationNotFound).Once()

	w := f.do(http.MethodPost, "/conversations/missing/read", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteConversation(t *testing.T) {
	f := setupHandler(t, "user-a")
	sub := f.bus.Subscribe(events.KindConversationDeleted)

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("GetConversation", mock.Anything, "conv-1").Return(conv, nil).Once()
	f.convRepo.On("DeleteConversation", mock.Anything, "conv-1").Return(conv, nil).Once()

	w := f.do(http.MethodDelete, "/conversations/conv-1", "")

	require.Equal(t, http.StatusNoContent, w.Code)

	ev := receiveEvent(t, sub)
	deleted, ok := ev.(events.ConversationDeleted)
	require.True(t, ok)
	assert.Equal(t, "conv-1", deleted.ConversationID)
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, deleted.ParticipantIDs)
	f.convRepo.AssertExpectations(t)
}

func TestDeleteConversationNotParticipant(t *testing.T) {
	f := setupHandler(t, "user-c")

	conv := sampleConversation("conv-1", "user-a", "user-b")
	f.convRepo.On("GetConversation", mock.Anything, "conv-1").Return(conv, nil).Once()

	w := f.do(http.MethodDelete, "/conversations/conv-1", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.convRepo.AssertNotCalled(t, "DeleteConversation", mock.Anything, mock.Anything)
}

func TestDeleteConversationNotFound(t *testing.T) {
	f := setupHandler(t, "user-a")

	f.convRepo.On("GetConversation", mock.Anything, "missing").
		Return(nil, repositories.ErrConversationNotFound).Once()

	w := f.do(http.MethodDelete, "/conversations/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
