package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type availabilityService interface {
	Check(ctx context.Context, req dto.AvailabilityCheckRequest) ([]dto.AvailabilityResult, error)
	ListWindows(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error)
	CreateWindow(ctx context.Context, teacherID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error)
	UpdateWindow(ctx context.Context, id, ownerID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error)
	DeleteWindow(ctx context.Context, id, ownerID string) error
}

type availabilityImporter interface {
	Import(ctx context.Context, filename string, data []byte, replace bool) (*dto.ImportResult, error)
	MaxBytes() int64
}

type availabilityExporter interface {
	ExportAvailability(ctx context.Context) (*dto.ExportLink, error)
	OpenDownload(token string) (*os.File, string, error)
}

// AvailabilityHandler serves the resolver, window management and CSV import/export.
type AvailabilityHandler struct {
	service  availabilityService
	importer availabilityImporter
	exporter availabilityExporter
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(svc availabilityService, importer availabilityImporter, exporter availabilityExporter) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc, importer: importer, exporter: exporter}
}

// Check godoc
// @Summary Check teacher availability
// @Description Evaluates each teacher against weekly windows, accepted class requests and scheduled meetings.
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityCheckRequest true "Candidate slot"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/availability/check [post]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	var req dto.AvailabilityCheckRequest
	if !bindJSON(c, &req, "invalid availability payload") {
		return
	}
	results, err := h.service.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	available := 0
	for _, result := range results {
		if result.Available {
			available++
		}
	}
	middleware.SetMeta(c, "available", available)
	response.JSON(c, http.StatusOK, results, nil, middleware.ExtractMeta(c))
}

// ListForTeacher godoc
// @Summary List a teacher's weekly windows
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/availability [get]
func (h *AvailabilityHandler) ListForTeacher(c *gin.Context) {
	h.list(c, c.Param("id"))
}

// CreateForTeacher godoc
// @Summary Add a weekly window for a teacher
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.AvailabilityWindowRequest true "Window"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers/{id}/availability [post]
func (h *AvailabilityHandler) CreateForTeacher(c *gin.Context) {
	h.create(c, c.Param("id"))
}

// Update godoc
// @Summary Replace a weekly window
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Window ID"
// @Param payload body dto.AvailabilityWindowRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /admin/availability/{id} [put]
func (h *AvailabilityHandler) Update(c *gin.Context) {
	h.update(c, "")
}

// Delete godoc
// @Summary Delete a weekly window
// @Tags Availability
// @Param id path string true "Window ID"
// @Success 204
// @Router /admin/availability/{id} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	h.delete(c, "")
}

// ListOwn godoc
// @Summary List my weekly windows
// @Tags Teacher Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/availability [get]
func (h *AvailabilityHandler) ListOwn(c *gin.Context) {
	if id, ok := principalID(c); ok {
		h.list(c, id)
	}
}

// CreateOwn godoc
// @Summary Add one of my weekly windows
// @Tags Teacher Portal
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityWindowRequest true "Window"
// @Success 201 {object} response.Envelope
// @Router /teacher/availability [post]
func (h *AvailabilityHandler) CreateOwn(c *gin.Context) {
	if id, ok := principalID(c); ok {
		h.create(c, id)
	}
}

// UpdateOwn godoc
// @Summary Replace one of my weekly windows
// @Tags Teacher Portal
// @Accept json
// @Produce json
// @Param id path string true "Window ID"
// @Param payload body dto.AvailabilityWindowRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /teacher/availability/{id} [put]
func (h *AvailabilityHandler) UpdateOwn(c *gin.Context) {
	if id, ok := principalID(c); ok {
		h.update(c, id)
	}
}

// DeleteOwn godoc
// @Summary Delete one of my weekly windows
// @Tags Teacher Portal
// @Param id path string true "Window ID"
// @Success 204
// @Router /teacher/availability/{id} [delete]
func (h *AvailabilityHandler) DeleteOwn(c *gin.Context) {
	if id, ok := principalID(c); ok {
		h.delete(c, id)
	}
}

func (h *AvailabilityHandler) list(c *gin.Context, teacherID string) {
	windows, err := h.service.ListWindows(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

func (h *AvailabilityHandler) create(c *gin.Context, teacherID string) {
	var req dto.AvailabilityWindowRequest
	if !bindJSON(c, &req, "invalid availability window") {
		return
	}
	window, err := h.service.CreateWindow(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

func (h *AvailabilityHandler) update(c *gin.Context, ownerID string) {
	var req dto.AvailabilityWindowRequest
	if !bindJSON(c, &req, "invalid availability window") {
		return
	}
	window, err := h.service.UpdateWindow(c.Request.Context(), c.Param("id"), ownerID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

func (h *AvailabilityHandler) delete(c *gin.Context, ownerID string) {
	if err := h.service.DeleteWindow(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import weekly windows from CSV
// @Description Columns: teacher_email or teacher_id, day_of_week, start_time, end_time, subject. Rows are validated independently.
// @Tags Availability
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param replace formData bool false "Remove windows of listed teachers that the file no longer contains"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /admin/availability/import [post]
func (h *AvailabilityHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	limit := h.importer.MaxBytes()
	if header.Size > limit {
		response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", limit)))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}

	replace, _ := strconv.ParseBool(c.DefaultPostForm("replace", c.DefaultQuery("replace", "false")))
	result, err := h.importer.Import(c.Request.Context(), header.Filename, data, replace)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export all weekly windows as CSV
// @Description Writes the file to storage and returns a signed, expiring download link.
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/availability/export [get]
func (h *AvailabilityHandler) Export(c *gin.Context) {
	link, err := h.exporter.ExportAvailability(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download an exported file
// @Tags Exports
// @Produce text/csv
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *AvailabilityHandler) Download(c *gin.Context) {
	file, name, err := h.exporter.OpenDownload(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read export"))
		return
	}
	if info.IsDir() {
		response.Error(c, appErrors.Internal(errors.New("export path is a directory"), "failed to read export"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "text/csv; charset=utf-8", file, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}
