package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/export"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
	"github.com/noah-isme/tutorhub-api/pkg/timeslot"
)

// ExportScopeAvailability is the signed-link scope of availability exports.
const ExportScopeAvailability = "availability"

var availabilityExportHeaders = []string{columnTeacherEmail, columnTeacherID, "teacher_name", columnDayOfWeek, "day_name", columnStartTime, columnEndTime, columnSubject}

type availabilityExportReader interface {
	ListForExport(ctx context.Context) ([]models.AvailabilityExportRow, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Sign(scope, path string) (string, time.Time, error)
	Verify(token string) (*storage.DownloadGrant, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders availability exports to storage and serves them through signed links.
type ExportService struct {
	windows availabilityExportReader
	storage fileStorage
	signer  urlSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(windows availabilityExportReader, storage fileStorage, signer urlSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		windows: windows,
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ExportAvailability writes every window as CSV (in the import column layout) and returns
// a signed download link.
func (s *ExportService) ExportAvailability(ctx context.Context) (*dto.ExportLink, error) {
	rows, err := s.windows.ListForExport(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}
	dataset := export.Dataset{Headers: availabilityExportHeaders, Rows: make([]map[string]string, 0, len(rows)), ExcelBOM: true}
	for _, row := range rows {
		subject := ""
		if row.Subject != nil {
			subject = *row.Subject
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			columnTeacherEmail: row.TeacherEmail,
			columnTeacherID:    row.TeacherID,
			"teacher_name":     row.TeacherName,
			columnDayOfWeek:    fmt.Sprintf("%d", row.DayOfWeek),
			"day_name":         timeslot.DayName(row.DayOfWeek),
			columnStartTime:    row.StartTime,
			columnEndTime:      row.EndTime,
			columnSubject:      subject,
		})
	}
	payload, err := export.RenderCSV(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render availability export")
	}

	name := fmt.Sprintf("exports/availability_%s.csv", s.now().UTC().Format("20060102_150405"))
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store availability export")
	}
	token, expiresAt, err := s.signer.Sign(ExportScopeAvailability, relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("availability export generated", zap.String("path", relPath), zap.Int("rows", len(rows)))
	return &dto.ExportLink{
		URL:       fmt.Sprintf("%s/exports/download?token=%s", prefix, url.QueryEscape(token)),
		Token:     token,
		ExpiresAt: expiresAt,
		Rows:      len(rows),
	}, nil
}

// OpenDownload verifies token and opens the file it grants. The caller closes the file.
func (s *ExportService) OpenDownload(token string) (*os.File, string, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, "", appErrors.Internal(err, "failed to open export")
	}
	name := grant.Path
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return file, name, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}
