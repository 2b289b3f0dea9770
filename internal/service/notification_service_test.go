package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func scheduledAssessment() (*models.Assessment, *models.AssessmentMeeting, []models.Teacher) {
	a := &models.Assessment{ID: "a1", StudentName: "Dewi", Email: "dewi@example.com", ClassLevel: 7, Subjects: []string{"Math"}, Timezone: "Asia/Jakarta"}
	m := &models.AssessmentMeeting{ScheduledDate: monday, ScheduledTime: "09:00", DurationMinutes: 30, JoinURL: "https://zoom.example/j/1", StartURL: "https://zoom.example/s/1", HostEmail: "ana@example.com", Kind: models.MeetingInitial}
	teachers := []models.Teacher{
		{ID: "t1", FullName: "Ana", Email: "ana@example.com"},
		{ID: "t2", FullName: "Budi", Email: "budi@example.com"},
	}
	return a, m, teachers
}

func TestNotificationMeetingScheduledInline(t *testing.T) {
	mail := &recordingMailer{}
	metrics := NewMetricsService()
	svc := NewNotificationService(mail, metrics, zap.NewNop(), NotificationConfig{})

	a, m, teachers := scheduledAssessment()
	svc.MeetingScheduled(context.Background(), a, m, teachers)

	sent := mail.messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "dewi@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextBody, "https://zoom.example/j/1")
	assert.Contains(t, sent[0].TextBody, "Ana, Budi")
	assert.Contains(t, sent[1].TextBody, "Host link: https://zoom.example/s/1", "the host gets the start link")
	assert.Contains(t, sent[2].TextBody, "Join link: https://zoom.example/j/1")
	assert.NotContains(t, sent[2].TextBody, "zoom.example/s/")
	assert.Equal(t, uint64(3), metrics.Snapshot().NotificationsSent)
}

func TestNotificationSkipsMissingAdmin(t *testing.T) {
	mail := &recordingMailer{}
	svc := NewNotificationService(mail, nil, zap.NewNop(), NotificationConfig{})
	svc.ContactReceived(context.Background(), &models.ContactMessage{Name: "Eka", Email: "eka@example.com", Message: "Hello there"})
	assert.Empty(t, mail.messages())

	svc = NewNotificationService(mail, nil, zap.NewNop(), NotificationConfig{AdminRecipient: "Ops <ops@example.com>"})
	svc.ContactReceived(context.Background(), &models.ContactMessage{Name: "Eka", Email: "eka@example.com", Message: "<b>Hello</b>"})
	sent := mail.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].HTMLBody, "&lt;b&gt;Hello&lt;/b&gt;")
}

func TestNotificationPasswordResetLink(t *testing.T) {
	mail := &recordingMailer{}
	svc := NewNotificationService(mail, nil, zap.NewNop(), NotificationConfig{PublicAppURL: "https://tutorhub.example"})
	svc.PasswordReset(context.Background(), models.Principal{FullName: "Ana", Email: "ana@example.com"}, models.RoleTeacher, "tok123")

	sent := mail.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextBody, "https://tutorhub.example/reset-password?role=teacher&token=tok123")
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	mail := &recordingMailer{err: errors.New("smtp down")}
	metrics := NewMetricsService()
	svc := NewNotificationService(mail, metrics, zap.NewNop(), NotificationConfig{})

	svc.ClassRequestStatusChanged(context.Background(), &models.ClassRequestDetail{
		ClassRequest: models.ClassRequest{Status: models.ClassRequestAccepted},
		StudentName:  "Citra", StudentEmail: "citra@example.com",
	})
	assert.Equal(t, uint64(1), metrics.Snapshot().NotificationsFailed)
}

func TestNotificationQueueDeliversAndGivesUp(t *testing.T) {
	mail := &recordingMailer{}
	metrics := NewMetricsService()
	svc := NewNotificationService(mail, metrics, zap.NewNop(), NotificationConfig{AdminRecipient: "ops@example.com"})
	queue := jobs.NewQueue("notifications", svc.HandleJob, jobs.QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: 10 * time.Millisecond, OnGiveUp: svc.GiveUp})
	svc.UseQueue(queue)
	queue.Start(context.Background())

	svc.AssessmentReceived(context.Background(), &models.Assessment{StudentName: "Dewi", Email: "dewi@example.com", ClassLevel: 5, Timezone: "UTC"})
	require.Eventually(t, func() bool { return len(mail.messages()) == 2 }, time.Second, 5*time.Millisecond)

	mail.mu.Lock()
	mail.err = errors.New("rejected")
	mail.mu.Unlock()
	svc.ContactReceived(context.Background(), &models.ContactMessage{Name: "Eka", Email: "eka@example.com", Message: "Hello there"})
	require.Eventually(t, func() bool { return metrics.Snapshot().NotificationsFailed == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	queue.Stop(ctx)
	assert.Equal(t, uint64(2), metrics.Snapshot().NotificationsSent)
}
