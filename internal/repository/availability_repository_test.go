package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestAvailabilityRepositoryUpsertOutcomes(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)
	importedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		inserted bool
		touched  bool
		want     UpsertOutcome
	}{
		{"insert", true, true, UpsertInserted},
		{"subject changed", false, true, UpsertUpdated},
		{"identical row", false, false, UpsertUnchanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock.ExpectQuery("INSERT INTO teacher_availability .* ON CONFLICT \\(teacher_id, day_of_week, start_time, end_time\\) DO UPDATE").
				WithArgs(sqlmock.AnyArg(), "t1", 1, "09:00", "10:00", nil, importedAt).
				WillReturnRows(sqlmock.NewRows([]string{"id", "inserted", "touched"}).AddRow("w1", tc.inserted, tc.touched))

			window := &models.TeacherAvailability{TeacherID: "t1", DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}
			outcome, err := repo.UpsertFromCSV(context.Background(), window, importedAt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			assert.Equal(t, "w1", window.ID)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDeleteSuperseded(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)
	importedAt := time.Now().UTC()

	mock.ExpectExec("DELETE FROM teacher_availability WHERE teacher_id = ANY").
		WithArgs(pq.Array([]string{"t1", "t2"}), importedAt).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := repo.DeleteSuperseded(context.Background(), []string{"t1", "t2"}, importedAt)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	removed, err = repo.DeleteSuperseded(context.Background(), nil, importedAt)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec("INSERT INTO teacher_availability").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.TeacherAvailability{TeacherID: "t1", DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestAvailabilityRepositoryListByTeacherAndDay(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "day_of_week", "start_time", "end_time", "subject", "last_updated_from_csv", "created_at", "updated_at"}).
		AddRow("w1", "t1", 2, "09:00", "12:00", "math", nil, now, now)
	mock.ExpectQuery("FROM teacher_availability WHERE teacher_id = \\$1 AND day_of_week = \\$2").
		WithArgs("t1", 2).
		WillReturnRows(rows)

	windows, err := repo.ListByTeacherAndDay(context.Background(), "t1", 2)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "math", *windows[0].Subject)
}
