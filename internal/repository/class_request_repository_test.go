package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestClassRequestRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec("UPDATE class_requests SET status = \\$3").
		WithArgs("cr1", models.ClassRequestPending, models.ClassRequestAccepted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "cr1", models.ClassRequestPending, models.ClassRequestAccepted))

	mock.ExpectExec("UPDATE class_requests SET status = \\$3").
		WithArgs("cr1", models.ClassRequestPending, models.ClassRequestRejected, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), "cr1", models.ClassRequestPending, models.ClassRequestRejected)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryListAcceptedExcludes(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectQuery("WHERE cr.teacher_id = \\$1 AND cr.preferred_date = \\$2 AND cr.status = \\$3 AND cr.id <> \\$4 ORDER BY cr.schedule_time").
		WithArgs("t1", "2025-03-03", models.ClassRequestAccepted, "cr9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "schedule_time", "student_name"}).AddRow("cr1", "t1", "10:00", "Budi"))

	items, err := repo.ListAcceptedByTeacherAndDate(context.Background(), "t1", "2025-03-03", "cr9")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10:00", items[0].ScheduleTime)
	assert.Equal(t, "Budi", items[0].StudentName)
}

func TestClassRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)
	status := models.ClassRequestPending

	mock.ExpectQuery("WHERE 1=1 AND cr.teacher_id = \\$1 AND cr.status = \\$2 ORDER BY cr.created_at DESC LIMIT 10 OFFSET 10").
		WithArgs("t1", status).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cr1"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM class_requests cr WHERE 1=1 AND cr.teacher_id = \\$1 AND cr.status = \\$2").
		WithArgs("t1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.ClassRequestFilter{TeacherID: "t1", Status: &status, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 11, total)
}
