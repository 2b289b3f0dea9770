package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/timeslot"
	"github.com/noah-isme/tutorhub-api/pkg/zoom"
)

type assessmentRepository interface {
	Create(ctx context.Context, a *models.Assessment) error
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.AssessmentStatus) error
	AppendMeeting(ctx context.Context, meeting *models.AssessmentMeeting, from []models.AssessmentStatus, to models.AssessmentStatus) error
	UpdateMeetingTeachers(ctx context.Context, meetingID string, teacherIDs []string) error
}

// MeetingProvisioner creates and removes video meetings.
type MeetingProvisioner interface {
	CreateMeeting(ctx context.Context, req zoom.MeetingRequest) (*zoom.Meeting, error)
	DeleteMeeting(ctx context.Context, meetingID string) error
}

type availabilityChecker interface {
	Check(ctx context.Context, req dto.AvailabilityCheckRequest) ([]dto.AvailabilityResult, error)
}

// SchedulingLocker serialises scheduling writes for one teacher and date.
type SchedulingLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// AssessmentNotifier is told about assessment lifecycle events. Delivery is best-effort.
type AssessmentNotifier interface {
	AssessmentReceived(ctx context.Context, a *models.Assessment)
	MeetingScheduled(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher)
	TeachersReassigned(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher)
}

// AssessmentConfig holds scheduling defaults.
type AssessmentConfig struct {
	DefaultDuration int
	Timezone        string
	LockTTL         time.Duration
}

// AssessmentService orchestrates free-trial assessments: intake, approval with meeting
// provisioning, follow-ups, teacher reassignment and status transitions.
type AssessmentService struct {
	repo        assessmentRepository
	teachers    teacherLookup
	checker     availabilityChecker
	provisioner MeetingProvisioner
	locker      SchedulingLocker
	notifier    AssessmentNotifier
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         AssessmentConfig
}

// NewAssessmentService constructs an AssessmentService.
func NewAssessmentService(repo assessmentRepository, teachers teacherLookup, checker availabilityChecker, provisioner MeetingProvisioner, locker SchedulingLocker, notifier AssessmentNotifier, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg AssessmentConfig) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 30
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &AssessmentService{
		repo:        repo,
		teachers:    teachers,
		checker:     checker,
		provisioner: provisioner,
		locker:      locker,
		notifier:    notifier,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Create records a public free-trial request. Invalid input never reaches the store.
func (s *AssessmentService) Create(ctx context.Context, req dto.CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid assessment payload")
	}
	a := &models.Assessment{
		StudentName: strings.TrimSpace(req.StudentName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		ClassLevel:  req.ClassLevel,
		Subjects:    req.Subjects,
		Timezone:    s.cfg.Timezone,
		Status:      models.AssessmentNew,
		ParentName:  optional(req.ParentName),
		Phone:       optional(req.Phone),
		Message:     optional(req.Message),
	}
	if req.PreferredDate != "" {
		if _, err := timeslot.ParseDate(req.PreferredDate); err != nil {
			return nil, appErrors.Validation(err, "preferredDate: "+err.Error())
		}
		a.PreferredDate = optional(req.PreferredDate)
	}
	if req.PreferredTime != "" {
		normalized, err := timeslot.Normalize(req.PreferredTime)
		if err != nil {
			return nil, appErrors.Validation(err, "preferredTime: "+err.Error())
		}
		a.PreferredTime = &normalized
	}
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, appErrors.Validation(err, "timezone is not a valid IANA zone")
		}
		a.Timezone = tz
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	a.Meetings = []models.AssessmentMeeting{}
	s.notifier.AssessmentReceived(ctx, a)
	return a, nil
}

// Get returns one assessment with its meetings.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	return a, nil
}

// List returns assessments with pagination metadata.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown assessment status")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list assessments")
	}
	if items == nil {
		items = []models.Assessment{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve schedules the initial meeting and moves the assessment to Scheduled.
func (s *AssessmentService) Approve(ctx context.Context, id string, req dto.ScheduleMeetingRequest) (*models.Assessment, error) {
	from := []models.AssessmentStatus{models.AssessmentNew, models.AssessmentContacted}
	return s.schedule(ctx, id, req, models.MeetingInitial, from)
}

// AddFollowUp schedules another meeting for an already scheduled assessment.
func (s *AssessmentService) AddFollowUp(ctx context.Context, id string, req dto.ScheduleMeetingRequest) (*models.Assessment, error) {
	return s.schedule(ctx, id, req, models.MeetingFollowUp, []models.AssessmentStatus{models.AssessmentScheduled})
}

func (s *AssessmentService) schedule(ctx context.Context, id string, req dto.ScheduleMeetingRequest, kind models.MeetingKind, from []models.AssessmentStatus) (*models.Assessment, error) {
	teacherIDs := uniqueIDs(req.TeacherIDs)
	if len(teacherIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one teacher must be selected")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid schedule payload")
	}
	if _, err := timeslot.ParseDate(req.Date); err != nil {
		return nil, appErrors.Validation(err, "date: "+err.Error())
	}
	clock, err := timeslot.Normalize(req.Time)
	if err != nil {
		return nil, appErrors.Validation(err, "time: "+err.Error())
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = s.cfg.DefaultDuration
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(a.Status, from) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot schedule a meeting for an assessment in status %s", a.Status))
	}
	teachers, err := s.loadActiveTeachers(ctx, teacherIDs)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, teacherIDs, req.Date)
	if err != nil {
		return nil, err
	}
	defer release()

	results, err := s.checker.Check(ctx, dto.AvailabilityCheckRequest{
		TeacherIDs:      teacherIDs,
		Date:            req.Date,
		Time:            clock,
		DurationMinutes: duration,
	})
	if err != nil {
		return nil, err
	}
	if unavailable := Unavailable(results); len(unavailable) > 0 {
		return nil, ConflictError(unavailable)
	}

	hosts := make([]string, len(teachers))
	for i, t := range teachers {
		hosts[i] = t.Email
	}
	start := time.Now()
	provisioned, err := s.provisioner.CreateMeeting(ctx, zoom.MeetingRequest{
		Topic:           meetingTopic(a, kind),
		HostEmails:      hosts,
		Date:            req.Date,
		Time:            clock,
		DurationMinutes: duration,
		Timezone:        a.Timezone,
		Agenda:          strings.Join(a.Subjects, ", "),
	})
	s.metrics.ObserveMeetingProvisioning(err, time.Since(start))
	if err != nil {
		return nil, providerError(err)
	}

	meeting := &models.AssessmentMeeting{
		AssessmentID:    a.ID,
		TeacherIDs:      teacherIDs,
		ScheduledDate:   req.Date,
		ScheduledTime:   clock,
		DurationMinutes: duration,
		JoinURL:         provisioned.JoinURL,
		StartURL:        provisioned.StartURL,
		MeetingID:       provisioned.MeetingID,
		HostEmail:       provisioned.HostEmail,
		Kind:            kind,
	}
	if err := s.repo.AppendMeeting(ctx, meeting, from, models.AssessmentScheduled); err != nil {
		s.compensate(ctx, provisioned.MeetingID)
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assessment status changed while scheduling")
		}
		return nil, appErrors.Internal(err, "failed to save meeting")
	}

	a.Status = models.AssessmentScheduled
	a.Meetings = append(a.Meetings, *meeting)
	s.logger.Info("assessment meeting scheduled",
		zap.String("assessment_id", a.ID),
		zap.String("meeting_id", meeting.MeetingID),
		zap.String("kind", string(kind)),
		zap.Strings("teacher_ids", teacherIDs),
	)
	s.notifier.MeetingScheduled(ctx, a, meeting, teachers)
	return a, nil
}

// ReassignTeachers rewrites the teachers on the latest meeting and re-sends invitations.
// No availability check or status change takes place.
func (s *AssessmentService) ReassignTeachers(ctx context.Context, id string, req dto.ReassignTeachersRequest) (*models.Assessment, error) {
	teacherIDs := uniqueIDs(req.TeacherIDs)
	if len(teacherIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one teacher must be selected")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssessmentScheduled || len(a.Meetings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only scheduled assessments can be reassigned")
	}
	teachers, err := s.loadActiveTeachers(ctx, teacherIDs)
	if err != nil {
		return nil, err
	}
	latest := &a.Meetings[len(a.Meetings)-1]
	if err := s.repo.UpdateMeetingTeachers(ctx, latest.ID, teacherIDs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return nil, appErrors.Internal(err, "failed to reassign teachers")
	}
	latest.TeacherIDs = teacherIDs
	s.notifier.TeachersReassigned(ctx, a, latest, teachers)
	return a, nil
}

// UpdateStatus applies a plain lifecycle transition.
func (s *AssessmentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateAssessmentStatusRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assessment status")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move assessment from %s to %s", a.Status, req.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, a.Status, req.Status); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "assessment status changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update assessment status")
	}
	a.Status = req.Status
	return a, nil
}

func (s *AssessmentService) loadActiveTeachers(ctx context.Context, ids []string) ([]models.Teacher, error) {
	found, err := s.teachers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teachers")
	}
	byID := make(map[string]models.Teacher, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	ordered := make([]models.Teacher, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", id))
		}
		if !t.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("teacher %s is inactive", t.FullName))
		}
		ordered = append(ordered, t)
	}
	return ordered, nil
}

func (s *AssessmentService) lock(ctx context.Context, teacherIDs []string, date string) (func(), error) {
	return acquireScheduleLocks(ctx, s.locker, s.logger, s.cfg.LockTTL, teacherIDs, date)
}

// acquireScheduleLocks takes one lock per teacher for date in a fixed order. The returned
// func releases whatever was acquired.
func acquireScheduleLocks(ctx context.Context, locker SchedulingLocker, logger *zap.Logger, ttl time.Duration, teacherIDs []string, date string) (func(), error) {
	noop := func() {}
	if locker == nil {
		return noop, nil
	}
	keys := make([]string, len(teacherIDs))
	for i, id := range teacherIDs {
		keys[i] = "schedule:" + id + ":" + date
	}
	sort.Strings(keys)

	held := make(map[string]string, len(keys))
	release := func() {
		for key, token := range held {
			if err := locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				logger.Warn("failed to release scheduling lock", zap.String("key", key), zap.Error(err))
			}
		}
	}
	for _, key := range keys {
		token, ok, err := locker.Acquire(ctx, key, ttl)
		if err != nil {
			// Lock errors degrade to unlocked scheduling.
			logger.Warn("scheduling lock unavailable", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ok {
			release()
			return noop, appErrors.Clone(appErrors.ErrConflict, "another scheduling operation for this teacher and date is in progress")
		}
		held[key] = token
	}
	return release, nil
}

func (s *AssessmentService) compensate(ctx context.Context, meetingID string) {
	if err := s.provisioner.DeleteMeeting(context.WithoutCancel(ctx), meetingID); err != nil {
		s.logger.Error("failed to delete orphaned meeting", zap.String("meeting_id", meetingID), zap.Error(err))
		return
	}
	s.logger.Warn("deleted orphaned meeting after failed save", zap.String("meeting_id", meetingID))
}

func providerError(err error) error {
	if errors.Is(err, zoom.ErrNotConfigured) {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "meeting provider is not configured")
	}
	var apiErr *zoom.APIError
	if errors.As(err, &apiErr) {
		wrapped := appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "meeting provider error: "+apiErr.Message)
		wrapped.Details = map[string]int{"providerStatus": apiErr.StatusCode, "providerCode": apiErr.Code}
		return wrapped
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "meeting provider error: "+err.Error())
}

func meetingTopic(a *models.Assessment, kind models.MeetingKind) string {
	if kind == models.MeetingFollowUp {
		return fmt.Sprintf("Follow-up session - %s (class %d)", a.StudentName, a.ClassLevel)
	}
	return fmt.Sprintf("Free trial assessment - %s (class %d)", a.StudentName, a.ClassLevel)
}

func statusIn(status models.AssessmentStatus, allowed []models.AssessmentStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
