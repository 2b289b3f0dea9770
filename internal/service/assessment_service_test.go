package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/zoom"
)

type assessmentFixture struct {
	*availabilityFixture
	provisioner *fakeProvisioner
	notifier    *fakeNotifier
	locker      *fakeLocker
	svc         *AssessmentService
}

func newAssessmentFixture(assessments ...models.Assessment) *assessmentFixture {
	base := newAvailabilityFixture()
	base.assessments = newFakeAssessments(assessments...)
	f := &assessmentFixture{availabilityFixture: base, provisioner: &fakeProvisioner{}, notifier: &fakeNotifier{}, locker: &fakeLocker{}}
	checker := base.service(AvailabilityConfig{})
	f.svc = NewAssessmentService(base.assessments, base.teachers, checker, f.provisioner, f.locker, f.notifier, validator.New(), nil, zap.NewNop(), AssessmentConfig{Timezone: "Asia/Jakarta"})
	return f
}

func scheduleRequest(teacherIDs ...string) dto.ScheduleMeetingRequest {
	return dto.ScheduleMeetingRequest{TeacherIDs: teacherIDs, Date: monday, Time: "09:00", DurationMinutes: 30}
}

func TestAssessmentCreateRejectsOutOfRangeClass(t *testing.T) {
	f := newAssessmentFixture()
	_, err := f.svc.Create(context.Background(), dto.CreateAssessmentRequest{StudentName: "Dewi", Email: "dewi@example.com", ClassLevel: 1})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Zero(t, f.assessments.created)
	assert.Empty(t, f.notifier.all())
}

func TestAssessmentCreate(t *testing.T) {
	f := newAssessmentFixture()
	a, err := f.svc.Create(context.Background(), dto.CreateAssessmentRequest{
		StudentName: " Dewi ", Email: "Dewi@Example.com", ClassLevel: 7, Subjects: []string{"Math"}, PreferredTime: "9:30",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentNew, a.Status)
	assert.Equal(t, "Dewi", a.StudentName)
	assert.Equal(t, "dewi@example.com", a.Email)
	assert.Equal(t, "09:30", *a.PreferredTime)
	assert.Equal(t, "Asia/Jakarta", a.Timezone)
	assert.Equal(t, 1, f.assessments.created)
	assert.Equal(t, []string{"assessment_received"}, f.notifier.all())

	_, err = f.svc.Create(context.Background(), dto.CreateAssessmentRequest{StudentName: "Eka", Email: "eka@example.com", ClassLevel: 5, Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.Equal(t, 1, f.assessments.created)
}

func TestAssessmentApproveEmptyTeachersRejectedBeforeProvider(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", StudentName: "Dewi", Status: models.AssessmentNew})

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Zero(t, f.provisioner.calls())
	assert.Zero(t, f.assessments.appendCalls)
}

func TestAssessmentApproveSchedulesMeeting(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", StudentName: "Dewi", ClassLevel: 7, Status: models.AssessmentContacted, Timezone: "Asia/Jakarta"})

	a, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t2", "t1", "t2"))
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentScheduled, a.Status)
	require.Len(t, a.Meetings, 1)
	m := a.Meetings[0]
	assert.Equal(t, []string{"t2", "t1"}, []string(m.TeacherIDs))
	assert.Equal(t, models.MeetingInitial, m.Kind)
	assert.Equal(t, "budi@example.com", m.HostEmail)
	assert.NotEmpty(t, m.JoinURL)

	require.Len(t, f.provisioner.requests, 1)
	req := f.provisioner.requests[0]
	assert.Equal(t, []string{"budi@example.com", "ana@example.com"}, req.HostEmails)
	assert.Equal(t, "Asia/Jakarta", req.Timezone)
	assert.Equal(t, []string{"meeting_scheduled:initial"}, f.notifier.all())
	assert.Empty(t, f.locker.held, "locks released")

	stored, err := f.svc.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentScheduled, stored.Status)
}

func TestAssessmentApproveConflictListsTeachers(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", StudentName: "Dewi", Status: models.AssessmentNew})
	f.bookings.items["cr1"] = &models.ClassRequestDetail{
		ClassRequest: models.ClassRequest{ID: "cr1", TeacherID: "t1", Subject: "Math", PreferredDate: monday, ScheduleTime: "08:30-09:30", Status: models.ClassRequestAccepted},
		StudentName:  "Citra",
	}

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1", "t2"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, appErr.Code)
	details, ok := appErr.Details.([]dto.UnavailableTeacher)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "t1", details[0].TeacherID)
	assert.Equal(t, "08:30 - 09:30", details[0].Conflicts[0].Time)
	assert.Zero(t, f.provisioner.calls())
	assert.Empty(t, f.notifier.all())
}

func TestAssessmentApproveWrongStatus(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentCompleted})
	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Zero(t, f.provisioner.calls())
}

func TestAssessmentApproveInactiveTeacher(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentNew})
	f.teachers.items["t3"] = &models.Teacher{ID: "t3", FullName: "Gone", Active: false}
	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t3"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestAssessmentApproveProviderFailureLeavesStateUntouched(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentNew})
	f.provisioner.err = &zoom.APIError{StatusCode: 429, Code: 429, Message: "Too many requests"}

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Contains(t, appErr.Message, "Too many requests")
	assert.Zero(t, f.assessments.appendCalls)

	stored, _ := f.svc.Get(context.Background(), "a1")
	assert.Equal(t, models.AssessmentNew, stored.Status)
	assert.Empty(t, stored.Meetings)
}

func TestAssessmentApproveProviderNotConfigured(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentNew})
	f.svc.provisioner = zoom.Disabled{}

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, appErrors.FromError(err).Status)
}

func TestAssessmentApproveSaveFailureDeletesMeeting(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentNew})
	f.assessments.appendErr = errors.New("tx aborted")

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)
	assert.Len(t, f.provisioner.deleted, 1)
	assert.Empty(t, f.notifier.all())
}

func TestAssessmentApproveLockHeld(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", Status: models.AssessmentNew})
	f.locker.held = map[string]string{"schedule:t1:" + monday: "other"}

	_, err := f.svc.Approve(context.Background(), "a1", scheduleRequest("t1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Zero(t, f.provisioner.calls())
}

func TestAssessmentFollowUpKeepsStatusAndDetectsOwnMeeting(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", StudentName: "Dewi", Status: models.AssessmentNew})
	ctx := context.Background()

	_, err := f.svc.AddFollowUp(ctx, "a1", scheduleRequest("t1"))
	require.Error(t, err, "follow-up requires a scheduled assessment")

	_, err = f.svc.Approve(ctx, "a1", scheduleRequest("t1"))
	require.NoError(t, err)

	_, err = f.svc.AddFollowUp(ctx, "a1", scheduleRequest("t1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSchedulingConflict))

	next := scheduleRequest("t1")
	next.Time = "09:30"
	a, err := f.svc.AddFollowUp(ctx, "a1", next)
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentScheduled, a.Status)
	require.Len(t, a.Meetings, 2)
	assert.Equal(t, models.MeetingFollowUp, a.Meetings[1].Kind)
}

func TestAssessmentReassignTeachers(t *testing.T) {
	f := newAssessmentFixture(models.Assessment{ID: "a1", StudentName: "Dewi", Status: models.AssessmentNew})
	ctx := context.Background()

	_, err := f.svc.ReassignTeachers(ctx, "a1", dto.ReassignTeachersRequest{TeacherIDs: []string{"t2"}})
	require.Error(t, err, "nothing to reassign before approval")

	_, err = f.svc.Approve(ctx, "a1", scheduleRequest("t1"))
	require.NoError(t, err)

	a, err := f.svc.ReassignTeachers(ctx, "a1", dto.ReassignTeachersRequest{TeacherIDs: []string{"t2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, []string(a.Meetings[0].TeacherIDs))
	assert.Equal(t, 1, f.provisioner.calls(), "no new meeting")
	assert.Equal(t, []string{"meeting_scheduled:initial", "teachers_reassigned"}, f.notifier.all())

	_, err = f.svc.ReassignTeachers(ctx, "a1", dto.ReassignTeachersRequest{})
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestAssessmentUpdateStatusTransitions(t *testing.T) {
	f := newAssessmentFixture(
		models.Assessment{ID: "a1", Status: models.AssessmentNew},
		models.Assessment{ID: "a2", Status: models.AssessmentCanceled},
	)
	ctx := context.Background()

	a, err := f.svc.UpdateStatus(ctx, "a1", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentContacted})
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentContacted, a.Status)

	_, err = f.svc.UpdateStatus(ctx, "a1", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentCompleted})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.UpdateStatus(ctx, "a1", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentScheduled})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition), "scheduling goes through approval")

	a, err = f.svc.UpdateStatus(ctx, "a1", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentCanceled})
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentCanceled, a.Status)

	_, err = f.svc.UpdateStatus(ctx, "a2", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentCanceled})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.UpdateStatus(ctx, "a1", dto.UpdateAssessmentStatusRequest{Status: "Archived"})
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	_, err = f.svc.UpdateStatus(ctx, "missing", dto.UpdateAssessmentStatusRequest{Status: models.AssessmentCanceled})
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}
