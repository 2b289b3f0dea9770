package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type contactService interface {
	Submit(ctx context.Context, req dto.ContactRequest) (*models.ContactMessage, error)
	List(ctx context.Context, filter models.ContactFilter) ([]models.ContactMessage, *models.Pagination, error)
	MarkHandled(ctx context.Context, id string) (*models.ContactMessage, error)
}

// ContactHandler serves the public contact form and the admin inbox.
type ContactHandler struct {
	service contactService
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(svc contactService) *ContactHandler {
	return &ContactHandler{service: svc}
}

// Submit godoc
// @Summary Send a message to the team
// @Tags Contact
// @Accept json
// @Produce json
// @Param payload body dto.ContactRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Submit(c *gin.Context) {
	var req dto.ContactRequest
	if !bindJSON(c, &req, "invalid contact message") {
		return
	}
	msg, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// List godoc
// @Summary List contact messages
// @Tags Admin Contact
// @Produce json
// @Param handled query bool false "Filter by handled flag"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/contact-messages [get]
func (h *ContactHandler) List(c *gin.Context) {
	filter := models.ContactFilter{Handled: boolQuery(c, "handled")}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// MarkHandled godoc
// @Summary Mark a contact message as handled
// @Tags Admin Contact
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Router /admin/contact-messages/{id}/handled [patch]
func (h *ContactHandler) MarkHandled(c *gin.Context) {
	msg, err := h.service.MarkHandled(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}
