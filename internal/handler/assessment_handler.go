package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type assessmentService interface {
	Create(ctx context.Context, req dto.CreateAssessmentRequest) (*models.Assessment, error)
	Get(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error)
	Approve(ctx context.Context, id string, req dto.ScheduleMeetingRequest) (*models.Assessment, error)
	AddFollowUp(ctx context.Context, id string, req dto.ScheduleMeetingRequest) (*models.Assessment, error)
	ReassignTeachers(ctx context.Context, id string, req dto.ReassignTeachersRequest) (*models.Assessment, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateAssessmentStatusRequest) (*models.Assessment, error)
}

// AssessmentHandler exposes free-trial requests and their admin orchestration.
type AssessmentHandler struct {
	service assessmentService
}

// NewAssessmentHandler constructs an AssessmentHandler.
func NewAssessmentHandler(svc assessmentService) *AssessmentHandler {
	return &AssessmentHandler{service: svc}
}

// Create godoc
// @Summary Request a free assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssessmentRequest true "Free trial request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	var req dto.CreateAssessmentRequest
	if !bindJSON(c, &req, "invalid assessment payload") {
		return
	}
	assessment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// List godoc
// @Summary List assessments
// @Tags Admin Assessments
// @Produce json
// @Param status query string false "new, contacted, scheduled, completed or canceled"
// @Param search query string false "Search by student name or email"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	filter := models.AssessmentFilter{Search: strings.TrimSpace(c.Query("search"))}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := models.ParseAssessmentStatus(status)
		filter.Status = &s
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get assessment detail with meetings
// @Tags Admin Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	assessment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Approve godoc
// @Summary Approve and schedule the initial meeting
// @Description Checks every teacher's calendar, creates the video meeting and moves the assessment to scheduled.
// @Tags Admin Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.ScheduleMeetingRequest true "Meeting slot"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /admin/assessments/{id}/approve [post]
func (h *AssessmentHandler) Approve(c *gin.Context) {
	var req dto.ScheduleMeetingRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	assessment, err := h.service.Approve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// FollowUp godoc
// @Summary Schedule a follow-up meeting
// @Tags Admin Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.ScheduleMeetingRequest true "Meeting slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assessments/{id}/meetings [post]
func (h *AssessmentHandler) FollowUp(c *gin.Context) {
	var req dto.ScheduleMeetingRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	assessment, err := h.service.AddFollowUp(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// Reassign godoc
// @Summary Replace the teachers of the latest meeting
// @Tags Admin Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.ReassignTeachersRequest true "Teachers"
// @Success 200 {object} response.Envelope
// @Router /admin/assessments/{id}/teachers [put]
func (h *AssessmentHandler) Reassign(c *gin.Context) {
	var req dto.ReassignTeachersRequest
	if !bindJSON(c, &req, "invalid teacher selection") {
		return
	}
	assessment, err := h.service.ReassignTeachers(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// UpdateStatus godoc
// @Summary Move an assessment to another status
// @Tags Admin Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.UpdateAssessmentStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assessments/{id}/status [patch]
func (h *AssessmentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateAssessmentStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	assessment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}
