package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/export"
	"github.com/noah-isme/tutorhub-api/pkg/timeslot"
)

// CSV columns understood by the availability import.
const (
	columnTeacherEmail = "teacher_email"
	columnTeacherID    = "teacher_id"
	columnDayOfWeek    = "day_of_week"
	columnStartTime    = "start_time"
	columnEndTime      = "end_time"
	columnSubject      = "subject"
)

const defaultMaxCSVBytes int64 = 2 << 20

type availabilityImportRepository interface {
	ListByTeacherAndDay(ctx context.Context, teacherID string, day int) ([]models.TeacherAvailability, error)
	UpsertFromCSV(ctx context.Context, window *models.TeacherAvailability, importedAt time.Time) (repository.UpsertOutcome, error)
	DeleteSuperseded(ctx context.Context, teacherIDs []string, importedAt time.Time) (int, error)
}

type teacherDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
}

type blobStorage interface {
	Save(name string, data []byte) (string, error)
}

// ImportConfig bounds uploads.
type ImportConfig struct {
	MaxBytes int64
	Archive  bool
}

// AvailabilityImportService loads weekly windows from admin CSV uploads.
type AvailabilityImportService struct {
	windows  availabilityImportRepository
	teachers teacherDirectory
	storage  blobStorage
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ImportConfig
	now      func() time.Time
}

// NewAvailabilityImportService constructs the importer. storage may be nil to skip archiving.
func NewAvailabilityImportService(windows availabilityImportRepository, teachers teacherDirectory, storage blobStorage, metrics *MetricsService, logger *zap.Logger, cfg ImportConfig) *AvailabilityImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxCSVBytes
	}
	return &AvailabilityImportService{
		windows:  windows,
		teachers: teachers,
		storage:  storage,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// MaxBytes reports the upload limit so handlers can cap the request body.
func (s *AvailabilityImportService) MaxBytes() int64 {
	return s.cfg.MaxBytes
}

type csvColumns map[string]int

func (c csvColumns) value(record []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Import validates every row on its own and upserts the valid ones. With replace set,
// windows of the referenced teachers that the file no longer lists are removed.
func (s *AvailabilityImportService) Import(ctx context.Context, filename string, data []byte, replace bool) (*dto.ImportResult, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".csv" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only .csv files are accepted")
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}
	data = export.StripBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Validation(err, "unable to read csv header")
	}
	columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	// One timestamp per import; truncated to what Postgres stores so DeleteSuperseded
	// compares equal values.
	importedAt := s.now().UTC().Truncate(time.Microsecond)
	result := &dto.ImportResult{Errors: []dto.ImportRowError{}}
	touched := map[string]struct{}{}
	resolved := map[string]*models.Teacher{}
	plans := map[string]*dayPlan{}

	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: parseErr.Err.Error()})
				continue
			}
			return nil, appErrors.Validation(err, "unable to read csv")
		}
		if blankRecord(record) {
			result.Skipped++
			continue
		}

		window, err := s.parseRow(ctx, columns, record, resolved)
		if err != nil {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: err.Error()})
			continue
		}
		plan, err := s.dayPlan(ctx, plans, window, replace)
		if err != nil {
			s.logger.Warn("availability import overlap check failed", zap.Int("row", row), zap.Error(err))
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: "failed to check existing windows"})
			continue
		}
		span, err := windowInterval(*window)
		if err != nil {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: err.Error()})
			continue
		}
		duplicate, err := plan.check(span, window.Subject)
		if err != nil {
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: err.Error()})
			continue
		}
		if duplicate {
			result.Skipped++
			continue
		}
		outcome, err := s.windows.UpsertFromCSV(ctx, window, importedAt)
		if err != nil {
			s.logger.Warn("availability import row failed", zap.Int("row", row), zap.Error(err))
			result.Errors = append(result.Errors, dto.ImportRowError{Row: row, Message: "failed to save row"})
			continue
		}
		touched[window.TeacherID] = struct{}{}
		plan.accepted = append(plan.accepted, plannedWindow{row: row, span: span, subject: window.Subject})
		switch outcome {
		case repository.UpsertInserted:
			result.Imported++
		case repository.UpsertUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if replace && len(touched) > 0 {
		ids := make([]string, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		removed, err := s.windows.DeleteSuperseded(ctx, ids, importedAt)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to remove superseded availability")
		}
		result.Removed = removed
	}

	if s.cfg.Archive && s.storage != nil {
		name := fmt.Sprintf("imports/%s_%s", importedAt.Format("20060102T150405Z"), sanitizeFilename(filepath.Base(filename)))
		if stored, err := s.storage.Save(name, data); err != nil {
			s.logger.Warn("failed to archive availability import", zap.String("file", name), zap.Error(err))
		} else {
			result.Archive = stored
		}
	}

	s.metrics.RecordImportRows("imported", result.Imported)
	s.metrics.RecordImportRows("updated", result.Updated)
	s.metrics.RecordImportRows("skipped", result.Skipped)
	s.metrics.RecordImportRows("removed", result.Removed)
	s.metrics.RecordImportRows("error", len(result.Errors))
	s.logger.Info("availability import finished",
		zap.String("file", filename),
		zap.Bool("replace", replace),
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("removed", result.Removed),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func parseHeader(header []string) (csvColumns, error) {
	columns := csvColumns{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	_, hasEmail := columns[columnTeacherEmail]
	_, hasID := columns[columnTeacherID]
	if !hasEmail && !hasID {
		missing = append(missing, columnTeacherEmail+"|"+columnTeacherID)
	}
	for _, required := range []string{columnDayOfWeek, columnStartTime, columnEndTime} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing csv columns: "+strings.Join(missing, ", "))
	}
	return columns, nil
}

func (s *AvailabilityImportService) parseRow(ctx context.Context, columns csvColumns, record []string, resolved map[string]*models.Teacher) (*models.TeacherAvailability, error) {
	teacher, err := s.resolveTeacher(ctx, columns.value(record, columnTeacherID), columns.value(record, columnTeacherEmail), resolved)
	if err != nil {
		return nil, err
	}
	day, err := timeslot.ParseDayOfWeek(columns.value(record, columnDayOfWeek))
	if err != nil {
		return nil, err
	}
	start, err := timeslot.ParseClock(columns.value(record, columnStartTime))
	if err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	end, err := timeslot.ParseClock(columns.value(record, columnEndTime))
	if err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return nil, errors.New("start_time must be before end_time")
	}
	window := &models.TeacherAvailability{
		TeacherID: teacher.ID,
		DayOfWeek: day,
		StartTime: start.String(),
		EndTime:   end.String(),
	}
	if subject := columns.value(record, columnSubject); subject != "" {
		if len(subject) > 80 {
			return nil, errors.New("subject must be at most 80 characters")
		}
		window.Subject = &subject
	}
	return window, nil
}

func (s *AvailabilityImportService) resolveTeacher(ctx context.Context, id, email string, resolved map[string]*models.Teacher) (*models.Teacher, error) {
	key := "id:" + id
	lookup := func() (*models.Teacher, error) { return s.teachers.FindByID(ctx, id) }
	if id == "" {
		email = strings.ToLower(email)
		if email == "" {
			return nil, errors.New("teacher_email or teacher_id is required")
		}
		key = "email:" + email
		lookup = func() (*models.Teacher, error) { return s.teachers.FindByEmail(ctx, email) }
	}
	if teacher, ok := resolved[key]; ok {
		if teacher == nil {
			return nil, errors.New("teacher not found")
		}
		return teacher, nil
	}
	teacher, err := lookup()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			resolved[key] = nil
			return nil, errors.New("teacher not found")
		}
		return nil, errors.New("failed to look up teacher")
	}
	if !teacher.Active {
		return nil, fmt.Errorf("teacher %s is inactive", teacher.Email)
	}
	resolved[key] = teacher
	return teacher, nil
}

type plannedWindow struct {
	row     int
	span    timeslot.Interval
	subject *string
}

// dayPlan holds what one import has settled for a teacher and weekday, plus the stored
// windows it must not overlap. Replace imports leave existing empty since those windows
// are superseded.
type dayPlan struct {
	accepted []plannedWindow
	existing []models.TeacherAvailability
}

func (s *AvailabilityImportService) dayPlan(ctx context.Context, plans map[string]*dayPlan, window *models.TeacherAvailability, replace bool) (*dayPlan, error) {
	key := fmt.Sprintf("%s/%d", window.TeacherID, window.DayOfWeek)
	if plan, ok := plans[key]; ok {
		return plan, nil
	}
	plan := &dayPlan{}
	if !replace {
		existing, err := s.windows.ListByTeacherAndDay(ctx, window.TeacherID, window.DayOfWeek)
		if err != nil {
			return nil, err
		}
		plan.existing = existing
	}
	plans[key] = plan
	return plan, nil
}

// check reports whether span repeats an earlier row verbatim, or why it cannot be stored.
// A stored window with the same range is the upsert target, not a conflict.
func (p *dayPlan) check(span timeslot.Interval, subject *string) (bool, error) {
	for _, prev := range p.accepted {
		if prev.span == span {
			if sameSubject(prev.subject, subject) {
				return true, nil
			}
			return false, fmt.Errorf("conflicts with row %d", prev.row)
		}
		if prev.span.Overlaps(span) {
			return false, fmt.Errorf("overlaps %s on row %d", prev.span, prev.row)
		}
	}
	for _, other := range p.existing {
		otherSpan, err := windowInterval(other)
		if err != nil || otherSpan == span {
			continue
		}
		if otherSpan.Overlaps(span) {
			return false, fmt.Errorf("overlaps existing window %s", otherSpan)
		}
	}
	return false, nil
}

func sameSubject(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(*a, *b)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
