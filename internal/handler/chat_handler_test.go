package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type chatServiceStub struct {
	unavailable bool
	sent        string
}

func (s *chatServiceStub) Start(ctx context.Context) (*models.ChatSession, error) {
	if s.unavailable {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "chat is temporarily unavailable")
	}
	return &models.ChatSession{ID: "chat-1", CreatedAt: time.Now(), LastSeenAt: time.Now()}, nil
}

func (s *chatServiceStub) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "chat session not found")
}

func (s *chatServiceStub) Send(ctx context.Context, id string, req dto.ChatMessageRequest) (*dto.ChatReply, error) {
	s.sent = req.Text
	return &dto.ChatReply{SessionID: id, Reply: models.ChatMessage{Role: models.ChatRoleAssistant, Text: "hi", Intent: "greeting"}, Messages: 3}, nil
}

func TestChatHandlerStartAndSend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &chatServiceStub{}
	h := NewChatHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/chat/sessions", nil)
	h.Start(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"chat-1"`)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/chat/sessions/chat-1/messages", bytes.NewReader([]byte(`{"text":"hello"}`)))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "chat-1"}}
	h.Send(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", svc.sent)
	assert.Contains(t, w.Body.String(), `"intent":"greeting"`)
}

func TestChatHandlerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(&chatServiceStub{unavailable: true})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/chat/sessions", nil)
	h.Start(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/chat/sessions/gone", nil)
	c.Params = gin.Params{{Key: "id", Value: "gone"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
