package dto

import "github.com/noah-isme/tutorhub-api/internal/models"

// CreateAssessmentRequest is the public free-trial form.
type CreateAssessmentRequest struct {
	StudentName   string   `json:"studentName" validate:"required,min=2,max=120"`
	ParentName    string   `json:"parentName" validate:"omitempty,max=120"`
	Email         string   `json:"email" validate:"required,email"`
	Phone         string   `json:"phone" validate:"omitempty,max=32"`
	ClassLevel    int      `json:"class" validate:"required,min=2,max=12"`
	Subjects      []string `json:"subjects" validate:"omitempty,max=10,dive,required,max=60"`
	PreferredDate string   `json:"preferredDate" validate:"omitempty"`
	PreferredTime string   `json:"preferredTime" validate:"omitempty"`
	Timezone      string   `json:"timezone" validate:"omitempty,max=64"`
	Message       string   `json:"message" validate:"omitempty,max=2000"`
}

// ScheduleMeetingRequest is used both for approval and for follow-up meetings.
// TeacherIDs is checked by hand so an empty selection is rejected with a clear message.
type ScheduleMeetingRequest struct {
	TeacherIDs      []string `json:"teacherIds"`
	Date            string   `json:"date" validate:"required"`
	Time            string   `json:"time" validate:"required"`
	DurationMinutes int      `json:"durationMinutes" validate:"omitempty,min=5,max=480"`
}

// ReassignTeachersRequest rewrites the teachers of the latest meeting.
type ReassignTeachersRequest struct {
	TeacherIDs []string `json:"teacherIds"`
}

// UpdateAssessmentStatusRequest moves an assessment along its lifecycle.
type UpdateAssessmentStatusRequest struct {
	Status models.AssessmentStatus `json:"status" validate:"required"`
}
