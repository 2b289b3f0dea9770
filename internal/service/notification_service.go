package service

import (
	"context"
	"fmt"
	"html"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
	"github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
)

// JobTypeEmail marks queued notification emails.
const JobTypeEmail = "email"

// Notification template names, also used as metric labels.
const (
	TemplateAssessmentReceived = "assessment_received"
	TemplateAssessmentAdmin    = "assessment_admin"
	TemplateMeetingStudent     = "meeting_student"
	TemplateMeetingTeacher     = "meeting_teacher"
	TemplateClassRequestNew    = "class_request_new"
	TemplateClassRequestStatus = "class_request_status"
	TemplatePasswordReset      = "password_reset"
	TemplateContactAdmin       = "contact_admin"
)

type emailJob struct {
	Template  string
	Message   mailer.Message
	RequestID string
}

type mailQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationConfig addresses outbound email.
type NotificationConfig struct {
	AdminRecipient string
	PublicAppURL   string
	SiteName       string
}

// NotificationService renders lifecycle emails and hands them to the worker queue.
// Failures are logged and counted, never returned.
type NotificationService struct {
	mailer  mailer.Mailer
	queue   mailQueue
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationConfig
}

// NewNotificationService constructs the dispatcher. Until UseQueue is called messages are
// sent inline.
func NewNotificationService(m mailer.Mailer, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "TutorHub"
	}
	return &NotificationService{mailer: m, metrics: metrics, logger: logger, cfg: cfg}
}

// UseQueue routes deliveries through q.
func (s *NotificationService) UseQueue(q mailQueue) {
	s.queue = q
}

// HandleJob is the jobs.Handler for queued emails.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailJob)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if err := s.mailer.Send(ctx, payload.Message); err != nil {
		return fmt.Errorf("send %s: %w", payload.Template, err)
	}
	s.metrics.RecordNotification(payload.Template, nil)
	return nil
}

// GiveUp records a job that exhausted its retries.
func (s *NotificationService) GiveUp(job jobs.Job, err error) {
	template, reqID := "unknown", ""
	if payload, ok := job.Payload.(emailJob); ok {
		template, reqID = payload.Template, payload.RequestID
	}
	s.metrics.RecordNotification(template, err)
	s.logger.Error("notification abandoned",
		zap.String("template", template),
		zap.String("job_id", job.ID),
		zap.String("request_id", reqID),
		zap.Error(err),
	)
}

func (s *NotificationService) dispatch(ctx context.Context, template string, msg mailer.Message) {
	if err := msg.Validate(); err != nil {
		s.logger.Debug("notification skipped", zap.String("template", template), zap.Error(err))
		return
	}
	if s.queue == nil {
		err := s.mailer.Send(ctx, msg)
		s.metrics.RecordNotification(template, err)
		if err != nil {
			s.logger.Warn("notification failed", zap.String("template", template), zap.Error(err))
		}
		return
	}
	payload := emailJob{Template: template, Message: msg, RequestID: requestid.FromContext(ctx)}
	if err := s.queue.Enqueue(jobs.Job{Type: JobTypeEmail, Payload: payload}); err != nil {
		s.metrics.RecordNotification(template, err)
		s.logger.Warn("notification not queued", zap.String("template", template), zap.Error(err))
	}
}

func (s *NotificationService) admin() []mail.Address {
	if s.cfg.AdminRecipient == "" {
		return nil
	}
	return []mail.Address{mailer.Address(s.cfg.SiteName+" admin", s.cfg.AdminRecipient)}
}

// AssessmentReceived confirms a free-trial request to the student and alerts the admin.
func (s *NotificationService) AssessmentReceived(ctx context.Context, a *models.Assessment) {
	s.dispatch(ctx, TemplateAssessmentReceived, message(
		[]mail.Address{mailer.Address(a.StudentName, a.Email)},
		"We received your free trial request",
		fmt.Sprintf("Hi %s,", a.StudentName),
		"Thank you for requesting a free assessment. Our team will contact you shortly to arrange a time.",
	))
	lines := []string{
		fmt.Sprintf("Student: %s (class %d)", a.StudentName, a.ClassLevel),
		"Email: " + a.Email,
		"Subjects: " + strings.Join(a.Subjects, ", "),
	}
	if a.PreferredDate != nil {
		slot := *a.PreferredDate
		if a.PreferredTime != nil {
			slot += " " + *a.PreferredTime
		}
		lines = append(lines, fmt.Sprintf("Preferred: %s (%s)", slot, a.Timezone))
	}
	if a.Message != nil {
		lines = append(lines, "Message: "+*a.Message)
	}
	s.dispatch(ctx, TemplateAssessmentAdmin, message(s.admin(), "New free trial request: "+a.StudentName, lines...))
}

// MeetingScheduled sends the meeting link to the student and every assigned teacher.
func (s *NotificationService) MeetingScheduled(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher) {
	subject := "Your free assessment is scheduled"
	if m.Kind == models.MeetingFollowUp {
		subject = "Your follow-up session is scheduled"
	}
	s.sendMeeting(ctx, subject, a, m, teachers)
}

// TeachersReassigned re-sends the meeting details after the teachers changed.
func (s *NotificationService) TeachersReassigned(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher) {
	s.sendMeeting(ctx, "Updated teachers for your session", a, m, teachers)
}

func (s *NotificationService) sendMeeting(ctx context.Context, subject string, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher) {
	names := make([]string, len(teachers))
	for i, t := range teachers {
		names[i] = t.FullName
	}
	when := fmt.Sprintf("%s at %s (%s), %d minutes", m.ScheduledDate, m.ScheduledTime, a.Timezone, m.DurationMinutes)

	s.dispatch(ctx, TemplateMeetingStudent, message(
		[]mail.Address{mailer.Address(a.StudentName, a.Email)},
		subject,
		fmt.Sprintf("Hi %s,", a.StudentName),
		"When: "+when,
		"Teachers: "+strings.Join(names, ", "),
		"Join link: "+m.JoinURL,
	))
	for _, t := range teachers {
		link := "Join link: " + m.JoinURL
		if strings.EqualFold(t.Email, m.HostEmail) && m.StartURL != "" {
			link = "Host link: " + m.StartURL
		}
		s.dispatch(ctx, TemplateMeetingTeacher, message(
			[]mail.Address{mailer.Address(t.FullName, t.Email)},
			fmt.Sprintf("Session with %s", a.StudentName),
			fmt.Sprintf("Hi %s,", t.FullName),
			fmt.Sprintf("You are assigned to %s (class %d).", a.StudentName, a.ClassLevel),
			"When: "+when,
			"Subjects: "+strings.Join(a.Subjects, ", "),
			link,
		))
	}
}

// ClassRequestCreated tells the teacher about a new booking and confirms it to the student.
func (s *NotificationService) ClassRequestCreated(ctx context.Context, r *models.ClassRequestDetail) {
	when := r.PreferredDate + " " + r.ScheduleTime
	s.dispatch(ctx, TemplateClassRequestNew, message(
		[]mail.Address{mailer.Address(r.TeacherName, r.TeacherEmail)},
		"New class request",
		fmt.Sprintf("%s requested %s (class %d) on %s.", r.StudentName, r.Subject, r.ClassLevel, when),
		"Please accept or reject it from your dashboard.",
	))
	s.dispatch(ctx, TemplateClassRequestNew, message(
		[]mail.Address{mailer.Address(r.StudentName, r.StudentEmail)},
		"Your class request was sent",
		fmt.Sprintf("Your request for %s with %s on %s is waiting for the teacher's confirmation.", r.Subject, r.TeacherName, when),
		"Amount: "+formatMoney(r.Amount, r.Currency),
	))
}

// ClassRequestStatusChanged tells the student about the teacher's decision.
func (s *NotificationService) ClassRequestStatusChanged(ctx context.Context, r *models.ClassRequestDetail) {
	s.dispatch(ctx, TemplateClassRequestStatus, message(
		[]mail.Address{mailer.Address(r.StudentName, r.StudentEmail)},
		fmt.Sprintf("Your class request was %s", r.Status),
		fmt.Sprintf("%s has %s your request for %s on %s %s.", r.TeacherName, r.Status, r.Subject, r.PreferredDate, r.ScheduleTime),
	))
}

// PasswordReset emails the single-use reset token.
func (s *NotificationService) PasswordReset(ctx context.Context, to models.Principal, role models.UserRole, token string) {
	lines := []string{
		fmt.Sprintf("Hi %s,", to.FullName),
		"We received a request to reset your password. The link below is valid for one hour.",
	}
	if s.cfg.PublicAppURL != "" {
		q := url.Values{"token": {token}, "role": {string(role)}}
		lines = append(lines, s.cfg.PublicAppURL+"/reset-password?"+q.Encode())
	} else {
		lines = append(lines, "Reset code: "+token)
	}
	lines = append(lines, "If you did not ask for this you can ignore this email.")
	s.dispatch(ctx, TemplatePasswordReset, message([]mail.Address{mailer.Address(to.FullName, to.Email)}, "Reset your password", lines...))
}

// ContactReceived forwards a contact-form inquiry to the admin inbox.
func (s *NotificationService) ContactReceived(ctx context.Context, msg *models.ContactMessage) {
	subject := msg.Subject
	if subject == "" {
		subject = "New contact message"
	}
	s.dispatch(ctx, TemplateContactAdmin, message(s.admin(), subject,
		fmt.Sprintf("From: %s <%s>", msg.Name, msg.Email),
		"Phone: "+msg.Phone,
		msg.Message,
	))
}

func message(to []mail.Address, subject string, lines ...string) mailer.Message {
	var body strings.Builder
	for _, line := range lines {
		body.WriteString("<p>")
		body.WriteString(html.EscapeString(line))
		body.WriteString("</p>")
	}
	recipients := make([]mail.Address, 0, len(to))
	for _, addr := range to {
		if strings.TrimSpace(addr.Address) != "" {
			recipients = append(recipients, addr)
		}
	}
	return mailer.Message{
		To:       recipients,
		Subject:  subject,
		TextBody: strings.Join(lines, "\n\n"),
		HTMLBody: body.String(),
	}
}
