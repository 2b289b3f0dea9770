package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/export"
	"github.com/noah-isme/tutorhub-api/pkg/timeslot"
)

type classRequestRepository interface {
	Create(ctx context.Context, req *models.ClassRequest) error
	FindByID(ctx context.Context, id string) (*models.ClassRequestDetail, error)
	List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ClassRequestStatus) error
	UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, reference *string) error
}

type quoter interface {
	Quote(ctx context.Context, classLevel int, pkg models.PackageType) (*models.Quote, error)
}

// ClassRequestNotifier is told about booking events. Delivery is best-effort.
type ClassRequestNotifier interface {
	ClassRequestCreated(ctx context.Context, r *models.ClassRequestDetail)
	ClassRequestStatusChanged(ctx context.Context, r *models.ClassRequestDetail)
}

// ClassRequestOwner scopes access to one student or teacher. The zero value is the
// unrestricted admin view.
type ClassRequestOwner struct {
	StudentID string
	TeacherID string
}

func (o ClassRequestOwner) allows(r *models.ClassRequestDetail) bool {
	if o.StudentID != "" && r.StudentID != o.StudentID {
		return false
	}
	if o.TeacherID != "" && r.TeacherID != o.TeacherID {
		return false
	}
	return true
}

// ClassRequestConfig holds booking defaults.
type ClassRequestConfig struct {
	LockTTL     time.Duration
	ReceiptName string
}

// ClassRequestService handles student bookings and the teacher/admin decisions on them.
type ClassRequestService struct {
	repo      classRequestRepository
	teachers  teacherLookup
	pricing   quoter
	checker   availabilityChecker
	locker    SchedulingLocker
	notifier  ClassRequestNotifier
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ClassRequestConfig
	now       func() time.Time
}

// NewClassRequestService constructs a ClassRequestService.
func NewClassRequestService(repo classRequestRepository, teachers teacherLookup, pricing quoter, checker availabilityChecker, locker SchedulingLocker, notifier ClassRequestNotifier, validate *validator.Validate, logger *zap.Logger, cfg ClassRequestConfig) *ClassRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ReceiptName == "" {
		cfg.ReceiptName = "TutorHub"
	}
	return &ClassRequestService{
		repo:      repo,
		teachers:  teachers,
		pricing:   pricing,
		checker:   checker,
		locker:    locker,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create books a class for studentID. The amount comes from the current pricing.
func (s *ClassRequestService) Create(ctx context.Context, studentID string, req dto.CreateClassRequestRequest) (*models.ClassRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid class request payload")
	}
	date, err := timeslot.ParseDate(req.PreferredDate)
	if err != nil {
		return nil, appErrors.Validation(err, "preferredDate: "+err.Error())
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "preferredDate must not be in the past")
	}
	span, err := timeslot.ParseRange(req.ScheduleTime)
	if err != nil {
		return nil, appErrors.Validation(err, "scheduleTime: "+err.Error())
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is not accepting bookings")
	}
	subject := strings.TrimSpace(req.Subject)
	if !teachesSubject(teacher, subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s does not teach %s", teacher.FullName, subject))
	}

	quote, err := s.pricing.Quote(ctx, req.ClassLevel, req.PackageType)
	if err != nil {
		return nil, err
	}

	booking := &models.ClassRequest{
		TeacherID:        teacher.ID,
		StudentID:        studentID,
		Subject:          subject,
		ClassLevel:       req.ClassLevel,
		PreferredDate:    date.Format(timeslot.DateLayout),
		ScheduleTime:     timeslot.FormatRange(span),
		Status:           models.ClassRequestPending,
		PackageType:      req.PackageType,
		Sessions:         quote.Sessions,
		Amount:           quote.Amount,
		Currency:         quote.Currency,
		PaymentStatus:    models.PaymentPending,
		PaymentReference: optional(req.PaymentReference),
		Note:             optional(req.Note),
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, appErrors.Internal(err, "failed to create class request")
	}

	detail, err := s.repo.FindByID(ctx, booking.ID)
	if err != nil {
		s.logger.Warn("class request reload failed", zap.String("class_request_id", booking.ID), zap.Error(err))
		detail = &models.ClassRequestDetail{ClassRequest: *booking, TeacherName: teacher.FullName, TeacherEmail: teacher.Email}
	}
	s.notifier.ClassRequestCreated(ctx, detail)
	return detail, nil
}

// Get returns one booking visible to owner.
func (s *ClassRequestService) Get(ctx context.Context, id string, owner ClassRequestOwner) (*models.ClassRequestDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Internal(err, "failed to load class request")
	}
	if !owner.allows(detail) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
	}
	return detail, nil
}

// List returns bookings with pagination metadata.
func (s *ClassRequestService) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, *models.Pagination, error) {
	if filter.Date != "" {
		if _, err := timeslot.ParseDate(filter.Date); err != nil {
			return nil, nil, appErrors.Validation(err, "date: "+err.Error())
		}
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list class requests")
	}
	if items == nil {
		items = []models.ClassRequestDetail{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus accepts or rejects a pending booking. Accepting re-checks the teacher's
// calendar with this booking left out.
func (s *ClassRequestService) UpdateStatus(ctx context.Context, id string, owner ClassRequestOwner, req dto.UpdateClassRequestStatusRequest) (*models.ClassRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status payload")
	}
	detail, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.ClassRequestPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move class request from %s to %s", detail.Status, req.Status))
	}

	if req.Status == models.ClassRequestAccepted {
		release, err := acquireScheduleLocks(ctx, s.locker, s.logger, s.cfg.LockTTL, []string{detail.TeacherID}, detail.PreferredDate)
		if err != nil {
			return nil, err
		}
		defer release()
		if err := s.ensureFree(ctx, detail); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, models.ClassRequestPending, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "class request status changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update class request status")
	}
	detail.Status = req.Status
	s.logger.Info("class request status changed",
		zap.String("class_request_id", id),
		zap.String("status", string(req.Status)),
		zap.String("teacher_id", detail.TeacherID),
	)
	s.notifier.ClassRequestStatusChanged(ctx, detail)
	return detail, nil
}

func (s *ClassRequestService) ensureFree(ctx context.Context, detail *models.ClassRequestDetail) error {
	span, err := timeslot.ParseRange(detail.ScheduleTime)
	if err != nil {
		return appErrors.Validation(err, "stored schedule is invalid: "+err.Error())
	}
	results, err := s.checker.Check(ctx, dto.AvailabilityCheckRequest{
		TeacherIDs:            []string{detail.TeacherID},
		Date:                  detail.PreferredDate,
		Time:                  span.Start.String(),
		DurationMinutes:       span.Duration(),
		ExcludeClassRequestID: detail.ID,
	})
	if err != nil {
		return err
	}
	if unavailable := Unavailable(results); len(unavailable) > 0 {
		return ConflictError(unavailable)
	}
	return nil
}

// UpdatePayment records the payment state reported for a booking.
func (s *ClassRequestService) UpdatePayment(ctx context.Context, id string, req dto.UpdatePaymentRequest) (*models.ClassRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payment payload")
	}
	if err := s.repo.UpdatePayment(ctx, id, req.PaymentStatus, optional(req.PaymentReference)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Internal(err, "failed to update payment")
	}
	return s.Get(ctx, id, ClassRequestOwner{})
}

// Receipt renders a PDF receipt for a paid booking.
func (s *ClassRequestService) Receipt(ctx context.Context, id string, owner ClassRequestOwner) ([]byte, string, error) {
	detail, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, "", err
	}
	if detail.PaymentStatus != models.PaymentPaid {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "receipt is available once payment is confirmed")
	}
	number := strings.ToUpper(strings.ReplaceAll(detail.ID, "-", ""))
	if len(number) > 10 {
		number = number[:10]
	}
	reference := "-"
	if detail.PaymentReference != nil {
		reference = *detail.PaymentReference
	}
	pdf, err := export.RenderReceiptPDF(export.Receipt{
		Title:    s.cfg.ReceiptName + " payment receipt",
		Number:   number,
		IssuedAt: s.now(),
		BilledTo: strings.TrimSpace(detail.StudentName + " <" + detail.StudentEmail + ">"),
		Lines: []export.ReceiptLine{
			{Label: "Teacher", Value: detail.TeacherName},
			{Label: "Subject", Value: detail.Subject},
			{Label: "Class", Value: strconv.Itoa(detail.ClassLevel)},
			{Label: "Schedule", Value: detail.PreferredDate + " " + detail.ScheduleTime},
			{Label: "Package", Value: packageLabel(detail.PackageType, detail.Sessions)},
			{Label: "Payment reference", Value: reference},
		},
		Total:    formatMoney(detail.Amount, detail.Currency),
		Footnote: "This receipt confirms payment only. Sessions are subject to teacher confirmation.",
	})
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render receipt")
	}
	return pdf, fmt.Sprintf("receipt-%s.pdf", strings.ToLower(number)), nil
}

func teachesSubject(t *models.Teacher, subject string) bool {
	if len(t.Subjects) == 0 {
		return true
	}
	for _, s := range t.Subjects {
		if strings.EqualFold(strings.TrimSpace(s), subject) {
			return true
		}
	}
	return false
}

func packageLabel(pkg models.PackageType, sessions int) string {
	if pkg == models.PackageStarterPack {
		return fmt.Sprintf("Starter pack (%d sessions)", sessions)
	}
	return "Single session"
}

func formatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%s %s", currency, strconv.FormatFloat(amount, 'f', 2, 64))
}
