package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type chatService interface {
	Start(ctx context.Context) (*models.ChatSession, error)
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	Send(ctx context.Context, id string, req dto.ChatMessageRequest) (*dto.ChatReply, error)
}

// ChatHandler serves the site assistant.
type ChatHandler struct {
	service chatService
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(svc chatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Start godoc
// @Summary Open a chat session
// @Tags Chat
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /chat/sessions [post]
func (h *ChatHandler) Start(c *gin.Context) {
	session, err := h.service.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get a chat session transcript
// @Tags Chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chat/sessions/{id} [get]
func (h *ChatHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Send godoc
// @Summary Send a message to the assistant
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ChatMessageRequest true "Message"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chat/sessions/{id}/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	var req dto.ChatMessageRequest
	if !bindJSON(c, &req, "invalid chat message") {
		return
	}
	reply, err := h.service.Send(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reply, nil)
}
