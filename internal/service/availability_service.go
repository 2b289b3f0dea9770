package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/timeslot"
)

// OutsideWindowTitle is the conflict title used when window enforcement is on and the
// candidate slot falls outside every configured window.
const OutsideWindowTitle = "Outside availability window"

type availabilityWindowRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error)
	ListByTeacherAndDay(ctx context.Context, teacherID string, dayOfWeek int) ([]models.TeacherAvailability, error)
	FindByID(ctx context.Context, id string) (*models.TeacherAvailability, error)
	Create(ctx context.Context, window *models.TeacherAvailability) error
	Update(ctx context.Context, window *models.TeacherAvailability) error
	Delete(ctx context.Context, id string) error
}

type acceptedBookingReader interface {
	ListAcceptedByTeacherAndDate(ctx context.Context, teacherID, date, excludeID string) ([]models.ClassRequestDetail, error)
}

type teacherMeetingReader interface {
	ListMeetingsForTeacherOnDate(ctx context.Context, teacherID, date, excludeAssessmentID string) ([]models.TeacherMeeting, error)
}

type teacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
}

// AvailabilityConfig tunes the resolver.
type AvailabilityConfig struct {
	EnforceWindows         bool
	DefaultMeetingDuration int
	DefaultClassDuration   int
}

// AvailabilityService resolves teacher free/busy status and manages weekly windows.
type AvailabilityService struct {
	windows   availabilityWindowRepository
	bookings  acceptedBookingReader
	meetings  teacherMeetingReader
	teachers  teacherLookup
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       AvailabilityConfig
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(windows availabilityWindowRepository, bookings acceptedBookingReader, meetings teacherMeetingReader, teachers teacherLookup, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg AvailabilityConfig) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMeetingDuration <= 0 {
		cfg.DefaultMeetingDuration = 30
	}
	if cfg.DefaultClassDuration <= 0 {
		cfg.DefaultClassDuration = 60
	}
	return &AvailabilityService{
		windows:   windows,
		bookings:  bookings,
		meetings:  meetings,
		teachers:  teachers,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Check evaluates every requested teacher against the candidate slot. Results keep the
// order of the request with duplicates removed.
func (s *AvailabilityService) Check(ctx context.Context, req dto.AvailabilityCheckRequest) ([]dto.AvailabilityResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid availability check payload")
	}
	weekday, err := timeslot.Weekday(req.Date)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	start, err := timeslot.ParseClock(req.Time)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = s.cfg.DefaultMeetingDuration
	}
	candidate := timeslot.NewInterval(start, duration)
	if candidate.End > timeslot.Clock(24*60) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must end before midnight")
	}

	ids := uniqueIDs(req.TeacherIDs)
	teachers, err := s.teachers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teachers")
	}
	byID := make(map[string]models.Teacher, len(teachers))
	for _, t := range teachers {
		byID[t.ID] = t
	}

	results := make([]dto.AvailabilityResult, 0, len(ids))
	for _, id := range ids {
		teacher, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", id))
		}
		result, err := s.evaluate(ctx, teacher, req.Date, weekday, candidate, req.ExcludeAssessmentID, req.ExcludeClassRequestID)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordAvailabilityCheck(result.Available)
		results = append(results, result)
	}
	return results, nil
}

func (s *AvailabilityService) evaluate(ctx context.Context, teacher models.Teacher, date string, weekday int, candidate timeslot.Interval, excludeAssessmentID, excludeClassRequestID string) (dto.AvailabilityResult, error) {
	result := dto.AvailabilityResult{
		TeacherID:   teacher.ID,
		TeacherName: teacher.FullName,
		Windows:     []dto.AvailabilityWindow{},
		Conflicts:   []dto.Conflict{},
	}

	windows, err := s.windows.ListByTeacherAndDay(ctx, teacher.ID, weekday)
	if err != nil {
		return result, appErrors.Internal(err, "failed to load availability windows")
	}
	// No windows on this weekday means no hard block.
	result.WithinAvailability = len(windows) == 0
	for _, w := range windows {
		result.Windows = append(result.Windows, dto.AvailabilityWindow{ID: w.ID, StartTime: w.StartTime, EndTime: w.EndTime, Subject: w.Subject})
		span, err := windowInterval(w)
		if err != nil {
			s.logger.Warn("skipping malformed availability window", zap.String("window_id", w.ID), zap.Error(err))
			continue
		}
		if span.Contains(candidate) {
			result.WithinAvailability = true
		}
	}

	bookings, err := s.bookings.ListAcceptedByTeacherAndDate(ctx, teacher.ID, date, excludeClassRequestID)
	if err != nil {
		return result, appErrors.Internal(err, "failed to load class bookings")
	}
	for _, b := range bookings {
		span, err := bookingInterval(b.ScheduleTime, s.cfg.DefaultClassDuration)
		if err != nil {
			s.logger.Warn("skipping class request with malformed schedule", zap.String("class_request_id", b.ID), zap.Error(err))
			continue
		}
		if candidate.Overlaps(span) {
			result.Conflicts = append(result.Conflicts, dto.Conflict{
				Title: fmt.Sprintf("Class: %s with %s", b.Subject, b.StudentName),
				Time:  span.String(),
			})
		}
	}

	meetings, err := s.meetings.ListMeetingsForTeacherOnDate(ctx, teacher.ID, date, excludeAssessmentID)
	if err != nil {
		return result, appErrors.Internal(err, "failed to load assessment meetings")
	}
	for _, m := range meetings {
		start, err := timeslot.ParseClock(m.ScheduledTime)
		if err != nil {
			s.logger.Warn("skipping meeting with malformed time", zap.String("meeting_id", m.ID), zap.Error(err))
			continue
		}
		duration := m.DurationMinutes
		if duration <= 0 {
			duration = s.cfg.DefaultMeetingDuration
		}
		span := timeslot.NewInterval(start, duration)
		if candidate.Overlaps(span) {
			title := "Assessment: " + m.StudentName
			if m.Kind == models.MeetingFollowUp {
				title = "Follow-up assessment: " + m.StudentName
			}
			result.Conflicts = append(result.Conflicts, dto.Conflict{Title: title, Time: span.String()})
		}
	}

	if s.cfg.EnforceWindows && !result.WithinAvailability {
		result.Conflicts = append(result.Conflicts, dto.Conflict{Title: OutsideWindowTitle, Time: candidate.String()})
	}
	result.Available = len(result.Conflicts) == 0
	return result, nil
}

// Unavailable extracts the teachers that failed a check, for conflict error details.
func Unavailable(results []dto.AvailabilityResult) []dto.UnavailableTeacher {
	var out []dto.UnavailableTeacher
	for _, r := range results {
		if r.Available {
			continue
		}
		out = append(out, dto.UnavailableTeacher{TeacherID: r.TeacherID, TeacherName: r.TeacherName, Conflicts: r.Conflicts})
	}
	return out
}

// ConflictError builds the 409 returned when any teacher is busy.
func ConflictError(unavailable []dto.UnavailableTeacher) error {
	names := make([]string, 0, len(unavailable))
	for _, u := range unavailable {
		names = append(names, u.TeacherName)
	}
	return appErrors.WithDetails(appErrors.ErrSchedulingConflict,
		fmt.Sprintf("teacher unavailable: %s", strings.Join(names, ", ")), unavailable)
}

// ListWindows returns the weekly windows of a teacher.
func (s *AvailabilityService) ListWindows(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	windows, err := s.windows.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list availability")
	}
	if windows == nil {
		windows = []models.TeacherAvailability{}
	}
	return windows, nil
}

// CreateWindow adds a weekly window for teacherID. Windows of the same teacher may not
// overlap on the same day.
func (s *AvailabilityService) CreateWindow(ctx context.Context, teacherID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error) {
	window, err := s.buildWindow(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	window.TeacherID = teacherID
	if err := s.ensureNoOverlap(ctx, window); err != nil {
		return nil, err
	}
	if err := s.windows.Create(ctx, window); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "availability window already exists")
		}
		return nil, appErrors.Internal(err, "failed to create availability window")
	}
	return window, nil
}

// UpdateWindow replaces a window. When ownerID is set the window must belong to it.
func (s *AvailabilityService) UpdateWindow(ctx context.Context, id, ownerID string, req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error) {
	next, err := s.buildWindow(req)
	if err != nil {
		return nil, err
	}
	current, err := s.loadWindow(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	current.DayOfWeek = next.DayOfWeek
	current.StartTime = next.StartTime
	current.EndTime = next.EndTime
	current.Subject = next.Subject
	if err := s.ensureNoOverlap(ctx, current); err != nil {
		return nil, err
	}
	if err := s.windows.Update(ctx, current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "availability window already exists")
		}
		return nil, appErrors.Internal(err, "failed to update availability window")
	}
	return current, nil
}

// DeleteWindow removes a window. When ownerID is set the window must belong to it.
func (s *AvailabilityService) DeleteWindow(ctx context.Context, id, ownerID string) error {
	if _, err := s.loadWindow(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.windows.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
		}
		return appErrors.Internal(err, "failed to delete availability window")
	}
	return nil
}

func (s *AvailabilityService) buildWindow(req dto.AvailabilityWindowRequest) (*models.TeacherAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid availability window payload")
	}
	start, err := timeslot.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Validation(err, "startTime: "+err.Error())
	}
	end, err := timeslot.ParseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.Validation(err, "endTime: "+err.Error())
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	var subject *string
	if req.Subject != nil && strings.TrimSpace(*req.Subject) != "" {
		trimmed := strings.TrimSpace(*req.Subject)
		subject = &trimmed
	}
	return &models.TeacherAvailability{
		DayOfWeek: req.DayOfWeek,
		StartTime: start.String(),
		EndTime:   end.String(),
		Subject:   subject,
	}, nil
}

func (s *AvailabilityService) loadWindow(ctx context.Context, id, ownerID string) (*models.TeacherAvailability, error) {
	window, err := s.windows.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
		}
		return nil, appErrors.Internal(err, "failed to load availability window")
	}
	if ownerID != "" && window.TeacherID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "availability window not found")
	}
	return window, nil
}

func (s *AvailabilityService) ensureNoOverlap(ctx context.Context, window *models.TeacherAvailability) error {
	span, err := windowInterval(*window)
	if err != nil {
		return appErrors.Validation(err, err.Error())
	}
	existing, err := s.windows.ListByTeacherAndDay(ctx, window.TeacherID, window.DayOfWeek)
	if err != nil {
		return appErrors.Internal(err, "failed to load availability windows")
	}
	for _, other := range existing {
		if other.ID == window.ID {
			continue
		}
		otherSpan, err := windowInterval(other)
		if err != nil {
			continue
		}
		if span.Overlaps(otherSpan) {
			return appErrors.WithDetails(appErrors.ErrConflict, "availability window overlaps an existing window",
				dto.AvailabilityWindow{ID: other.ID, StartTime: other.StartTime, EndTime: other.EndTime, Subject: other.Subject})
		}
	}
	return nil
}

func windowInterval(w models.TeacherAvailability) (timeslot.Interval, error) {
	return timeslot.ParseRange(w.StartTime + "-" + w.EndTime)
}

// bookingInterval parses a stored "HH:MM-HH:MM" schedule. A bare "HH:MM" falls back to
// the default class duration.
func bookingInterval(raw string, defaultDuration int) (timeslot.Interval, error) {
	if strings.Contains(raw, "-") {
		return timeslot.ParseRange(raw)
	}
	start, err := timeslot.ParseClock(raw)
	if err != nil {
		return timeslot.Interval{}, err
	}
	return timeslot.NewInterval(start, defaultDuration), nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
