package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type availabilityServiceStub struct {
	checkErr   error
	results    []dto.AvailabilityResult
	ownerSeen  string
	teacherArg string
}

func (s *availabilityServiceStub) Check(ctx context.Context, req dto.AvailabilityCheckRequest) ([]dto.AvailabilityResult, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return s.results, nil
}

func (s *availabilityServiceStub) ListWindows(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	s.teacherArg = teacherID
	return []models.TeacherAvailability{{ID: "w1", TeacherID: teacherID, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"}}, nil
}

func (s *availabilityServiceStub) CreateWindow(ctx context.Context, teacherID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error) {
	s.teacherArg = teacherID
	return &models.TeacherAvailability{ID: "w2", TeacherID: teacherID, DayOfWeek: req.DayOfWeek, StartTime: req.StartTime, EndTime: req.EndTime}, nil
}

func (s *availabilityServiceStub) UpdateWindow(ctx context.Context, id, ownerID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error) {
	s.ownerSeen = ownerID
	return &models.TeacherAvailability{ID: id}, nil
}

func (s *availabilityServiceStub) DeleteWindow(ctx context.Context, id, ownerID string) error {
	s.ownerSeen = ownerID
	if id == "missing" {
		return appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
	}
	return nil
}

type importerStub struct {
	max      int64
	filename string
	data     []byte
	replace  bool
}

func (s *importerStub) Import(ctx context.Context, filename string, data []byte, replace bool) (*dto.ImportResult, error) {
	s.filename, s.data, s.replace = filename, data, replace
	return &dto.ImportResult{Imported: 1, Errors: []dto.ImportRowError{}}, nil
}

func (s *importerStub) MaxBytes() int64 { return s.max }

type exporterStub struct {
	path string
}

func (s *exporterStub) ExportAvailability(ctx context.Context) (*dto.ExportLink, error) {
	return &dto.ExportLink{URL: "/api/v1/exports/download?token=abc", Token: "abc", Rows: 2}, nil
}

func (s *exporterStub) OpenDownload(token string) (*os.File, string, error) {
	if token != "good" {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(s.path), nil
}

func multipartUpload(t *testing.T, field, filename string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestAvailabilityHandlerCheckConflictDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conflict := appErrors.WithDetails(appErrors.ErrSchedulingConflict, "teachers unavailable", []dto.UnavailableTeacher{{TeacherID: "t1", TeacherName: "Ana"}})
	h := NewAvailabilityHandler(&availabilityServiceStub{checkErr: conflict}, &importerStub{}, &exporterStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.AvailabilityCheckRequest{TeacherIDs: []string{"t1"}, Date: "2026-11-02", Time: "10:00"})
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/availability/check", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Check(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var payload struct {
		Error struct {
			Code    string                   `json:"code"`
			Details []dto.UnavailableTeacher `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "SCHEDULING_CONFLICT", payload.Error.Code)
	require.Len(t, payload.Error.Details, 1)
	assert.Equal(t, "t1", payload.Error.Details[0].TeacherID)
}

func TestAvailabilityHandlerTeacherScopesToOwnID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &availabilityServiceStub{}
	h := NewAvailabilityHandler(svc, &importerStub{}, &exporterStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/teacher/availability/w1", nil)
	c.Params = gin.Params{{Key: "id", Value: "w1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-7", Role: models.RoleTeacher})

	h.DeleteOwn(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "teacher-7", svc.ownerSeen)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/admin/availability/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, svc.ownerSeen)
}

func TestAvailabilityHandlerOwnRoutesRequireClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAvailabilityHandler(&availabilityServiceStub{}, &importerStub{}, &exporterStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/teacher/availability", nil)

	h.ListOwn(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAvailabilityHandlerImport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	importer := &importerStub{max: 1024}
	h := NewAvailabilityHandler(&availabilityServiceStub{}, importer, &exporterStub{})

	csv := []byte("teacher_email,day_of_week,start_time,end_time\nana@example.com,1,09:00,12:00\n")
	body, contentType := multipartUpload(t, "file", "windows.csv", csv, map[string]string{"replace": "true"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/availability/import", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Import(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "windows.csv", importer.filename)
	assert.Equal(t, csv, importer.data)
	assert.True(t, importer.replace)
}

func TestAvailabilityHandlerImportRejectsLargeAndMissingFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAvailabilityHandler(&availabilityServiceStub{}, &importerStub{max: 16}, &exporterStub{})

	body, contentType := multipartUpload(t, "file", "windows.csv", bytes.Repeat([]byte("x"), 64), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/availability/import", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Import(c)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body, contentType = multipartUpload(t, "upload", "windows.csv", []byte("a"), nil)
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/availability/import", body)
	c.Request.Header.Set("Content-Type", contentType)
	h.Import(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "availability_20261102_101500.csv")
	require.NoError(t, os.WriteFile(path, []byte("teacher_email\nana@example.com\n"), 0o600))
	h := NewAvailabilityHandler(&availabilityServiceStub{}, &importerStub{}, &exporterStub{path: path})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=good", nil)
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "availability_20261102_101500.csv")
	assert.Equal(t, "teacher_email\nana@example.com\n", w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=forged", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
