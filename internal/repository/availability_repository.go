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
)

const availabilityColumns = "id, teacher_id, day_of_week, start_time, end_time, subject, last_updated_from_csv, created_at, updated_at"

// UpsertOutcome reports what an upsert did to the row.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertUpdated
	UpsertUnchanged
)

// AvailabilityRepository persists recurring teacher availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns every window of a teacher ordered by day and start time.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	var windows []models.TeacherAvailability
	query := "SELECT " + availabilityColumns + " FROM teacher_availability WHERE teacher_id = $1 ORDER BY day_of_week, start_time"
	if err := r.db.SelectContext(ctx, &windows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return windows, nil
}

// ListByTeacherAndDay returns a teacher's windows for one weekday.
func (r *AvailabilityRepository) ListByTeacherAndDay(ctx context.Context, teacherID string, dayOfWeek int) ([]models.TeacherAvailability, error) {
	var windows []models.TeacherAvailability
	query := "SELECT " + availabilityColumns + " FROM teacher_availability WHERE teacher_id = $1 AND day_of_week = $2 ORDER BY start_time"
	if err := r.db.SelectContext(ctx, &windows, query, teacherID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list availability for day: %w", err)
	}
	return windows, nil
}

// FindByID returns a window by id.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.TeacherAvailability, error) {
	var window models.TeacherAvailability
	if err := r.db.GetContext(ctx, &window, "SELECT "+availabilityColumns+" FROM teacher_availability WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find availability: %w", err)
	}
	return &window, nil
}

// Create inserts a window. The (teacher, day, start, end) unique key surfaces as a
// *pq.Error with code 23505.
func (r *AvailabilityRepository) Create(ctx context.Context, window *models.TeacherAvailability) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	window.CreatedAt = now
	window.UpdatedAt = now
	const query = `INSERT INTO teacher_availability (id, teacher_id, day_of_week, start_time, end_time, subject, last_updated_from_csv, created_at, updated_at)
VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :subject, :last_updated_from_csv, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("create availability: %w", err)
	}
	return nil
}

// Update rewrites the time range and subject of a window.
func (r *AvailabilityRepository) Update(ctx context.Context, window *models.TeacherAvailability) error {
	window.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teacher_availability SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time,
subject = :subject, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, window)
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a window.
func (r *AvailabilityRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM teacher_availability WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	return expectAffected(res)
}

// UpsertFromCSV inserts a window or refreshes the matching one, stamping
// last_updated_from_csv. Re-importing identical rows never creates duplicates.
func (r *AvailabilityRepository) UpsertFromCSV(ctx context.Context, window *models.TeacherAvailability, importedAt time.Time) (UpsertOutcome, error) {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	const query = `INSERT INTO teacher_availability (id, teacher_id, day_of_week, start_time, end_time, subject, last_updated_from_csv, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7)
ON CONFLICT (teacher_id, day_of_week, start_time, end_time) DO UPDATE
SET subject = EXCLUDED.subject,
    last_updated_from_csv = EXCLUDED.last_updated_from_csv,
    updated_at = CASE WHEN teacher_availability.subject IS DISTINCT FROM EXCLUDED.subject THEN EXCLUDED.updated_at ELSE teacher_availability.updated_at END
RETURNING id, (xmax = 0) AS inserted, (updated_at = $7) AS touched`
	var out struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
		Touched  bool   `db:"touched"`
	}
	if err := r.db.GetContext(ctx, &out, query, window.ID, window.TeacherID, window.DayOfWeek, window.StartTime, window.EndTime, window.Subject, importedAt); err != nil {
		return UpsertUnchanged, fmt.Errorf("upsert availability: %w", err)
	}
	window.ID = out.ID
	switch {
	case out.Inserted:
		return UpsertInserted, nil
	case out.Touched:
		return UpsertUpdated, nil
	default:
		return UpsertUnchanged, nil
	}
}

// DeleteSuperseded removes windows of the given teachers that were not refreshed by the
// import stamped importedAt, returning the number removed.
func (r *AvailabilityRepository) DeleteSuperseded(ctx context.Context, teacherIDs []string, importedAt time.Time) (int, error) {
	if len(teacherIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM teacher_availability WHERE teacher_id = ANY($1)
AND (last_updated_from_csv IS NULL OR last_updated_from_csv <> $2)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(teacherIDs), importedAt)
	if err != nil {
		return 0, fmt.Errorf("delete superseded availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ListForExport returns every window joined with its teacher.
func (r *AvailabilityRepository) ListForExport(ctx context.Context) ([]models.AvailabilityExportRow, error) {
	const query = `SELECT a.teacher_id, t.email AS teacher_email, t.full_name AS teacher_name, a.day_of_week, a.start_time, a.end_time, a.subject
FROM teacher_availability a JOIN teachers t ON t.id = a.teacher_id
ORDER BY t.email, a.day_of_week, a.start_time`
	var rows []models.AvailabilityExportRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list availability export: %w", err)
	}
	return rows, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
