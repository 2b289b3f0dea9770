package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type contactServiceStub struct {
	submitted dto.ContactRequest
	filter    models.ContactFilter
}

func (s *contactServiceStub) Submit(ctx context.Context, req dto.ContactRequest) (*models.ContactMessage, error) {
	s.submitted = req
	return &models.ContactMessage{Name: req.Name, Email: req.Email, Message: req.Message}, nil
}

func (s *contactServiceStub) List(ctx context.Context, filter models.ContactFilter) ([]models.ContactMessage, *models.Pagination, error) {
	s.filter = filter
	return []models.ContactMessage{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (s *contactServiceStub) MarkHandled(ctx context.Context, id string) (*models.ContactMessage, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "contact message not found")
}

func TestContactHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &contactServiceStub{}
	h := NewContactHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := []byte(`{"name":"Sari","email":"sari@example.com","message":"Do you teach chemistry?"}`)
	c.Request = httptest.NewRequest(http.MethodPost, "/contact", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "sari@example.com", svc.submitted.Email)
}

func TestContactHandlerListHandledFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &contactServiceStub{}
	h := NewContactHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/contact-messages?handled=false", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.Handled)
	assert.False(t, *svc.filter.Handled)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/contact-messages", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, svc.filter.Handled)
}

func TestContactHandlerMarkHandledMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewContactHandler(&contactServiceStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/admin/contact-messages/x/handled", nil)
	c.Params = gin.Params{{Key: "id", Value: "x"}}

	h.MarkHandled(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
