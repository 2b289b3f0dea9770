package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const classRequestDetailSelect = `SELECT cr.id, cr.teacher_id, cr.student_id, cr.subject, cr.class_level, cr.preferred_date, cr.schedule_time,
cr.status, cr.package_type, cr.sessions, cr.amount, cr.currency, cr.payment_status, cr.payment_reference, cr.note,
cr.created_at, cr.updated_at, t.full_name AS teacher_name, t.email AS teacher_email, s.full_name AS student_name, s.email AS student_email
FROM class_requests cr
JOIN teachers t ON t.id = cr.teacher_id
JOIN students s ON s.id = cr.student_id`

// ClassRequestRepository persists class bookings. Rows are never deleted.
type ClassRequestRepository struct {
	db *sqlx.DB
}

// NewClassRequestRepository constructs a ClassRequestRepository.
func NewClassRequestRepository(db *sqlx.DB) *ClassRequestRepository {
	return &ClassRequestRepository{db: db}
}

// Create inserts a booking.
func (r *ClassRequestRepository) Create(ctx context.Context, req *models.ClassRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	const query = `INSERT INTO class_requests (id, teacher_id, student_id, subject, class_level, preferred_date, schedule_time, status,
package_type, sessions, amount, currency, payment_status, payment_reference, note, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :subject, :class_level, :preferred_date, :schedule_time, :status,
:package_type, :sessions, :amount, :currency, :payment_status, :payment_reference, :note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create class request: %w", err)
	}
	return nil
}

// FindByID returns a booking with teacher and student names.
func (r *ClassRequestRepository) FindByID(ctx context.Context, id string) (*models.ClassRequestDetail, error) {
	var detail models.ClassRequestDetail
	if err := r.db.GetContext(ctx, &detail, classRequestDetailSelect+" WHERE cr.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class request: %w", err)
	}
	return &detail, nil
}

// List returns bookings matching filter, newest first, with the total count.
func (r *ClassRequestRepository) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if filter.TeacherID != "" {
		add("cr.teacher_id = $%d", filter.TeacherID)
	}
	if filter.StudentID != "" {
		add("cr.student_id = $%d", filter.StudentID)
	}
	if filter.Status != nil {
		add("cr.status = $%d", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		add("cr.payment_status = $%d", *filter.PaymentStatus)
	}
	if filter.Date != "" {
		add("cr.preferred_date = $%d", filter.Date)
	}
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY cr.created_at DESC LIMIT %d OFFSET %d", classRequestDetailSelect, where, size, offset)
	var items []models.ClassRequestDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class requests: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM class_requests cr" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class requests: %w", err)
	}
	return items, total, nil
}

// ListAcceptedByTeacherAndDate returns confirmed bookings of a teacher on date, leaving out
// excludeID when set.
func (r *ClassRequestRepository) ListAcceptedByTeacherAndDate(ctx context.Context, teacherID, date, excludeID string) ([]models.ClassRequestDetail, error) {
	query := classRequestDetailSelect + " WHERE cr.teacher_id = $1 AND cr.preferred_date = $2 AND cr.status = $3"
	args := []interface{}{teacherID, date, models.ClassRequestAccepted}
	if excludeID != "" {
		query += " AND cr.id <> $4"
		args = append(args, excludeID)
	}
	query += " ORDER BY cr.schedule_time"
	var items []models.ClassRequestDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list accepted class requests: %w", err)
	}
	return items, nil
}

// UpdateStatus moves a booking from one status to another. sql.ErrNoRows is returned when
// the row is missing or no longer in the expected status.
func (r *ClassRequestRepository) UpdateStatus(ctx context.Context, id string, from, to models.ClassRequestStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE class_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2", id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class request status: %w", err)
	}
	return expectAffected(res)
}

// UpdatePayment records payment status and reference.
func (r *ClassRequestRepository) UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, reference *string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE class_requests SET payment_status = $2, payment_reference = COALESCE($3, payment_reference), updated_at = $4 WHERE id = $1",
		id, status, reference, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class request payment: %w", err)
	}
	return expectAffected(res)
}
