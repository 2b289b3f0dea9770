package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type classRequestService interface {
	Create(ctx context.Context, studentID string, req dto.CreateClassRequestRequest) (*models.ClassRequestDetail, error)
	Get(ctx context.Context, id string, owner service.ClassRequestOwner) (*models.ClassRequestDetail, error)
	List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error)
	UpdateStatus(ctx context.Context, id string, owner service.ClassRequestOwner, req dto.UpdateClassRequestStatusRequest) (*models.ClassRequestDetail, error)
	UpdatePayment(ctx context.Context, id string, req dto.UpdatePaymentRequest) (*models.ClassRequestDetail, error)
	Receipt(ctx context.Context, id string, owner service.ClassRequestOwner) ([]byte, string, error)
}

// ClassRequestHandler serves bookings for students, teachers and admins.
type ClassRequestHandler struct {
	service classRequestService
}

// NewClassRequestHandler constructs a ClassRequestHandler.
func NewClassRequestHandler(svc classRequestService) *ClassRequestHandler {
	return &ClassRequestHandler{service: svc}
}

func classRequestFilter(c *gin.Context) models.ClassRequestFilter {
	filter := models.ClassRequestFilter{Date: strings.TrimSpace(c.Query("date"))}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := models.ClassRequestStatus(strings.ToLower(status))
		filter.Status = &s
	}
	if payment := strings.TrimSpace(c.Query("paymentStatus")); payment != "" {
		p := models.PaymentStatus(strings.ToLower(payment))
		filter.PaymentStatus = &p
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}

// Create godoc
// @Summary Book a class with a teacher
// @Tags Student Class Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequestRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /student/class-requests [post]
func (h *ClassRequestHandler) Create(c *gin.Context) {
	studentID, ok := principalID(c)
	if !ok {
		return
	}
	var req dto.CreateClassRequestRequest
	if !bindJSON(c, &req, "invalid class request payload") {
		return
	}
	detail, err := h.service.Create(c.Request.Context(), studentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// ListForStudent godoc
// @Summary List my class requests
// @Tags Student Class Requests
// @Produce json
// @Param status query string false "pending, accepted or rejected"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /student/class-requests [get]
func (h *ClassRequestHandler) ListForStudent(c *gin.Context) {
	studentID, ok := principalID(c)
	if !ok {
		return
	}
	filter := classRequestFilter(c)
	filter.StudentID = studentID
	h.list(c, filter)
}

// GetForStudent godoc
// @Summary Get one of my class requests
// @Tags Student Class Requests
// @Produce json
// @Param id path string true "Class request ID"
// @Success 200 {object} response.Envelope
// @Router /student/class-requests/{id} [get]
func (h *ClassRequestHandler) GetForStudent(c *gin.Context) {
	if studentID, ok := principalID(c); ok {
		h.get(c, service.ClassRequestOwner{StudentID: studentID})
	}
}

// Receipt godoc
// @Summary Download the PDF receipt of a paid booking
// @Tags Student Class Requests
// @Produce application/pdf
// @Param id path string true "Class request ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /student/class-requests/{id}/receipt [get]
func (h *ClassRequestHandler) Receipt(c *gin.Context) {
	studentID, ok := principalID(c)
	if !ok {
		return
	}
	pdf, name, err := h.service.Receipt(c.Request.Context(), c.Param("id"), service.ClassRequestOwner{StudentID: studentID})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, name, "application/pdf", pdf)
}

// ListForTeacher godoc
// @Summary List class requests addressed to me
// @Tags Teacher Portal
// @Produce json
// @Param status query string false "pending, accepted or rejected"
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /teacher/class-requests [get]
func (h *ClassRequestHandler) ListForTeacher(c *gin.Context) {
	teacherID, ok := principalID(c)
	if !ok {
		return
	}
	filter := classRequestFilter(c)
	filter.TeacherID = teacherID
	h.list(c, filter)
}

// UpdateStatusForTeacher godoc
// @Summary Accept or reject a class request addressed to me
// @Tags Teacher Portal
// @Accept json
// @Produce json
// @Param id path string true "Class request ID"
// @Param payload body dto.UpdateClassRequestStatusRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/class-requests/{id}/status [patch]
func (h *ClassRequestHandler) UpdateStatusForTeacher(c *gin.Context) {
	if teacherID, ok := principalID(c); ok {
		h.updateStatus(c, service.ClassRequestOwner{TeacherID: teacherID})
	}
}

// List godoc
// @Summary List class requests
// @Tags Admin Class Requests
// @Produce json
// @Param teacherId query string false "Teacher ID"
// @Param studentId query string false "Student ID"
// @Param status query string false "pending, accepted or rejected"
// @Param paymentStatus query string false "pending, paid, failed or refunded"
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /admin/class-requests [get]
func (h *ClassRequestHandler) List(c *gin.Context) {
	filter := classRequestFilter(c)
	filter.TeacherID = strings.TrimSpace(c.Query("teacherId"))
	filter.StudentID = strings.TrimSpace(c.Query("studentId"))
	h.list(c, filter)
}

// Get godoc
// @Summary Get class request detail
// @Tags Admin Class Requests
// @Produce json
// @Param id path string true "Class request ID"
// @Success 200 {object} response.Envelope
// @Router /admin/class-requests/{id} [get]
func (h *ClassRequestHandler) Get(c *gin.Context) {
	h.get(c, service.ClassRequestOwner{})
}

// UpdateStatus godoc
// @Summary Accept or reject a class request
// @Tags Admin Class Requests
// @Accept json
// @Produce json
// @Param id path string true "Class request ID"
// @Param payload body dto.UpdateClassRequestStatusRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/class-requests/{id}/status [patch]
func (h *ClassRequestHandler) UpdateStatus(c *gin.Context) {
	h.updateStatus(c, service.ClassRequestOwner{})
}

// UpdatePayment godoc
// @Summary Record the payment outcome of a class request
// @Tags Admin Class Requests
// @Accept json
// @Produce json
// @Param id path string true "Class request ID"
// @Param payload body dto.UpdatePaymentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Router /admin/class-requests/{id}/payment [patch]
func (h *ClassRequestHandler) UpdatePayment(c *gin.Context) {
	var req dto.UpdatePaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	detail, err := h.service.UpdatePayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func (h *ClassRequestHandler) list(c *gin.Context, filter models.ClassRequestFilter) {
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func (h *ClassRequestHandler) get(c *gin.Context, owner service.ClassRequestOwner) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func (h *ClassRequestHandler) updateStatus(c *gin.Context, owner service.ClassRequestOwner) {
	var req dto.UpdateClassRequestStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	detail, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), owner, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
