package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/database"
)

// ErrStatusChanged is returned when a guarded status update finds the assessment in a
// different state than expected, usually because of a concurrent request.
var ErrStatusChanged = errors.New("assessment status changed concurrently")

const (
	assessmentColumns = "id, student_name, parent_name, email, phone, class_level, subjects, preferred_date, preferred_time, timezone, message, status, created_at, updated_at"
	meetingColumns    = "id, assessment_id, teacher_ids, scheduled_date, scheduled_time, duration_minutes, join_url, start_url, meeting_id, host_email, kind, created_at"
)

// AssessmentRepository persists free-trial assessments and their meetings.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs an AssessmentRepository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create inserts a new assessment request.
func (r *AssessmentRepository) Create(ctx context.Context, a *models.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Subjects == nil {
		a.Subjects = pq.StringArray{}
	}
	const query = `INSERT INTO assessments (id, student_name, parent_name, email, phone, class_level, subjects, preferred_date, preferred_time,
timezone, message, status, created_at, updated_at)
VALUES (:id, :student_name, :parent_name, :email, :phone, :class_level, :subjects, :preferred_date, :preferred_time,
:timezone, :message, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// FindByID returns an assessment with its meetings in creation order.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	if err := r.db.GetContext(ctx, &a, "SELECT "+assessmentColumns+" FROM assessments WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	meetings, err := r.meetingsFor(ctx, []string{a.ID})
	if err != nil {
		return nil, err
	}
	a.Meetings = meetings[a.ID]
	if a.Meetings == nil {
		a.Meetings = []models.AssessmentMeeting{}
	}
	return &a, nil
}

// List returns assessments (with meetings) matching filter, newest first.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (student_name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM assessments%s ORDER BY created_at DESC LIMIT %d OFFSET %d", assessmentColumns, where, size, offset)
	var items []models.Assessment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assessments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}
	if len(items) == 0 {
		return items, total, nil
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	meetings, err := r.meetingsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Meetings = meetings[items[i].ID]
		if items[i].Meetings == nil {
			items[i].Meetings = []models.AssessmentMeeting{}
		}
	}
	return items, total, nil
}

func (r *AssessmentRepository) meetingsFor(ctx context.Context, assessmentIDs []string) (map[string][]models.AssessmentMeeting, error) {
	var rows []models.AssessmentMeeting
	query := "SELECT " + meetingColumns + " FROM assessment_meetings WHERE assessment_id = ANY($1) ORDER BY created_at"
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(assessmentIDs)); err != nil {
		return nil, fmt.Errorf("list assessment meetings: %w", err)
	}
	out := make(map[string][]models.AssessmentMeeting, len(assessmentIDs))
	for _, m := range rows {
		out[m.AssessmentID] = append(out[m.AssessmentID], m)
	}
	return out, nil
}

// UpdateStatus moves an assessment from one status to another, returning
// ErrStatusChanged when it is no longer in from.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.AssessmentStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE assessments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2", id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return ErrStatusChanged
	}
	return nil
}

// AppendMeeting inserts meeting and sets the assessment status to `to` in one
// transaction. The status update is guarded on `from` so two concurrent approvals cannot
// both commit.
func (r *AssessmentRepository) AppendMeeting(ctx context.Context, meeting *models.AssessmentMeeting, from []models.AssessmentStatus, to models.AssessmentStatus) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	meeting.CreatedAt = time.Now().UTC()
	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE assessments SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)",
			meeting.AssessmentID, to, meeting.CreatedAt, pq.Array(fromValues))
		if err != nil {
			return fmt.Errorf("update assessment status: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrStatusChanged
		}

		const insert = `INSERT INTO assessment_meetings (id, assessment_id, teacher_ids, scheduled_date, scheduled_time, duration_minutes,
join_url, start_url, meeting_id, host_email, kind, created_at)
VALUES (:id, :assessment_id, :teacher_ids, :scheduled_date, :scheduled_time, :duration_minutes,
:join_url, :start_url, :meeting_id, :host_email, :kind, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insert, meeting); err != nil {
			return fmt.Errorf("insert assessment meeting: %w", err)
		}
		return nil
	})
}

// UpdateMeetingTeachers rewrites the teacher list of a meeting.
func (r *AssessmentRepository) UpdateMeetingTeachers(ctx context.Context, meetingID string, teacherIDs []string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE assessment_meetings SET teacher_ids = $2 WHERE id = $1", meetingID, pq.StringArray(teacherIDs))
	if err != nil {
		return fmt.Errorf("update meeting teachers: %w", err)
	}
	return expectAffected(res)
}

// ListMeetingsForTeacherOnDate returns meetings on date that include teacherID, skipping
// canceled assessments and excludeAssessmentID when set.
func (r *AssessmentRepository) ListMeetingsForTeacherOnDate(ctx context.Context, teacherID, date, excludeAssessmentID string) ([]models.TeacherMeeting, error) {
	query := `SELECT m.id, m.assessment_id, m.teacher_ids, m.scheduled_date, m.scheduled_time, m.duration_minutes, m.join_url, m.start_url,
m.meeting_id, m.host_email, m.kind, m.created_at, a.student_name
FROM assessment_meetings m JOIN assessments a ON a.id = m.assessment_id
WHERE $1 = ANY(m.teacher_ids) AND m.scheduled_date = $2 AND a.status <> $3`
	args := []interface{}{teacherID, date, models.AssessmentCanceled}
	if excludeAssessmentID != "" {
		query += " AND m.assessment_id <> $4"
		args = append(args, excludeAssessmentID)
	}
	query += " ORDER BY m.scheduled_time"
	var rows []models.TeacherMeeting
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher meetings: %w", err)
	}
	return rows, nil
}
