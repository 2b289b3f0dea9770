package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

type importFixture struct {
	teachers *fakeTeachers
	windows  *fakeWindows
	svc      *AvailabilityImportService
	clock    time.Time
}

func newImportFixture(t *testing.T, store blobStorage) *importFixture {
	f := &importFixture{
		teachers: newFakeTeachers(
			models.Teacher{ID: "t1", FullName: "Ana", Email: "ana@example.com", Active: true},
			models.Teacher{ID: "t2", FullName: "Budi", Email: "budi@example.com", Active: true},
			models.Teacher{ID: "t3", FullName: "Gone", Email: "gone@example.com", Active: false},
		),
		windows: &fakeWindows{},
		clock:   time.Date(2025, 3, 1, 8, 0, 0, 123456789, time.UTC),
	}
	f.svc = NewAvailabilityImportService(f.windows, f.teachers, store, nil, zap.NewNop(), ImportConfig{Archive: store != nil})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestImportValidatesRowsIndependently(t *testing.T) {
	f := newImportFixture(t, nil)
	csv := strings.Join([]string{
		"teacher_email,day_of_week,start_time,end_time,subject",
		"ana@example.com,Monday,09:00,12:00,Math",
		"ana@example.com,2,9:00,10:00,",
		"ghost@example.com,1,09:00,10:00,",
		"budi@example.com,Funday,09:00,10:00,",
		"budi@example.com,1,11:00,10:00,",
		"budi@example.com,1,25:00,26:00,",
		"gone@example.com,1,09:00,10:00,",
		",,,,",
		"BUDI@example.com,sat,13:00,15:00,Physics",
	}, "\n")

	result, err := f.svc.Import(context.Background(), "availability.csv", []byte(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 5)
	assert.Equal(t, 4, result.Errors[0].Row)
	assert.Equal(t, "teacher not found", result.Errors[0].Message)
	assert.Equal(t, 5, result.Errors[1].Row)
	assert.Equal(t, 6, result.Errors[2].Row)
	assert.Contains(t, result.Errors[4].Message, "inactive")

	require.Len(t, f.windows.items, 3)
	assert.Equal(t, "09:00", f.windows.items[1].StartTime)
	assert.Equal(t, 6, f.windows.items[2].DayOfWeek)
}

func TestImportIsIdempotent(t *testing.T) {
	f := newImportFixture(t, nil)
	csv := "teacher_id,day_of_week,start_time,end_time,subject\nt1,1,09:00,12:00,Math\nt1,3,09:00,12:00,\n"

	first, err := f.svc.Import(context.Background(), "a.csv", []byte(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	f.clock = f.clock.Add(time.Hour)
	second, err := f.svc.Import(context.Background(), "a.csv", []byte(strings.Replace(csv, "Math", "Physics", 1)), false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.windows.items, 2)
}

func TestImportReplaceRemovesSupersededWindows(t *testing.T) {
	f := newImportFixture(t, nil)
	f.windows.items = []models.TeacherAvailability{
		{ID: "old-1", TeacherID: "t1", DayOfWeek: 2, StartTime: "08:00", EndTime: "09:00"},
		{ID: "other", TeacherID: "t2", DayOfWeek: 2, StartTime: "08:00", EndTime: "09:00"},
	}
	csv := "teacher_email,day_of_week,start_time,end_time\nana@example.com,1,09:00,12:00\n"

	result, err := f.svc.Import(context.Background(), "a.csv", []byte(csv), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Removed)

	ids := []string{}
	for _, w := range f.windows.items {
		ids = append(ids, w.TeacherID+"/"+w.StartTime)
	}
	assert.ElementsMatch(t, []string{"t1/09:00", "t2/08:00"}, ids, "teachers absent from the file are untouched")
	assert.Equal(t, f.clock.Truncate(time.Microsecond), *f.windows.items[1].LastUpdatedFromCSV)
}

func TestImportRejectsOverlapsAndSkipsRepeatedRows(t *testing.T) {
	f := newImportFixture(t, nil)
	f.windows.items = []models.TeacherAvailability{
		{ID: "stored", TeacherID: "t2", DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"},
	}
	csv := strings.Join([]string{
		"teacher_email,day_of_week,start_time,end_time,subject",
		"ana@example.com,1,09:00,12:00,Math",
		"ana@example.com,1,10:00,11:00,Math",
		"ana@example.com,1,09:00,12:00,Math",
		"ana@example.com,1,09:00,12:00,Physics",
		"ana@example.com,1,12:00,13:00,",
		"budi@example.com,1,09:00,11:00,",
		"budi@example.com,1,08:00,10:00,Chemistry",
	}, "\n")

	result, err := f.svc.Import(context.Background(), "a.csv", []byte(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped, "a repeated row is not counted as an update")
	require.Len(t, result.Errors, 3)
	assert.Equal(t, dto.ImportRowError{Row: 3, Message: "overlaps 09:00 - 12:00 on row 2"}, result.Errors[0])
	assert.Equal(t, dto.ImportRowError{Row: 5, Message: "conflicts with row 2"}, result.Errors[1])
	assert.Equal(t, dto.ImportRowError{Row: 7, Message: "overlaps existing window 08:00 - 10:00"}, result.Errors[2])
	assert.Len(t, f.windows.items, 3)
}

func TestImportReplaceIgnoresSupersededOverlaps(t *testing.T) {
	f := newImportFixture(t, nil)
	f.windows.items = []models.TeacherAvailability{
		{ID: "stored", TeacherID: "t1", DayOfWeek: 1, StartTime: "08:00", EndTime: "12:00"},
	}
	csv := "teacher_id,day_of_week,start_time,end_time\nt1,1,10:00,11:00\n"

	result, err := f.svc.Import(context.Background(), "a.csv", []byte(csv), true)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Removed)
	require.Len(t, f.windows.items, 1)
	assert.Equal(t, "10:00", f.windows.items[0].StartTime)
}

func TestImportRejectsBadFiles(t *testing.T) {
	f := newImportFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Import(ctx, "availability.xlsx", []byte("a,b"), false)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	big := make([]byte, defaultMaxCSVBytes+1)
	_, err = f.svc.Import(ctx, "big.csv", big, false)
	assert.Equal(t, http.StatusRequestEntityTooLarge, appErrors.FromError(err).Status)

	_, err = f.svc.Import(ctx, "empty.csv", []byte("\xef\xbb\xbf  \n"), false)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	_, err = f.svc.Import(ctx, "cols.csv", []byte("email,day\nx,1\n"), false)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "teacher_email|teacher_id")
	assert.Empty(t, f.windows.items)
}

func TestImportArchivesUpload(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := newImportFixture(t, store)

	result, err := f.svc.Import(context.Background(), "week 10.csv", []byte("teacher_id,day_of_week,start_time,end_time\nt1,1,09:00,10:00\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "imports/20250301T080000Z_week_10.csv", result.Archive)

	file, err := store.Open(result.Archive)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}
