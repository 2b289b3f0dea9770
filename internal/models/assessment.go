package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// AssessmentStatus is the lifecycle of a free-trial request.
type AssessmentStatus string

const (
	AssessmentNew       AssessmentStatus = "New"
	AssessmentContacted AssessmentStatus = "Contacted"
	AssessmentScheduled AssessmentStatus = "Scheduled"
	AssessmentCompleted AssessmentStatus = "Completed"
	AssessmentCanceled  AssessmentStatus = "Canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentCompleted || s == AssessmentCanceled
}

// Valid reports whether s is a known status.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentNew, AssessmentContacted, AssessmentScheduled, AssessmentCompleted, AssessmentCanceled:
		return true
	}
	return false
}

// ParseAssessmentStatus matches raw against the known statuses ignoring case. Unknown
// values are returned as given.
func ParseAssessmentStatus(raw string) AssessmentStatus {
	for _, s := range []AssessmentStatus{AssessmentNew, AssessmentContacted, AssessmentScheduled, AssessmentCompleted, AssessmentCanceled} {
		if strings.EqualFold(string(s), raw) {
			return s
		}
	}
	return AssessmentStatus(raw)
}

// CanTransition reports whether the status PATCH endpoint may move from s to next.
// Scheduling itself goes through approval, not a plain transition.
func (s AssessmentStatus) CanTransition(next AssessmentStatus) bool {
	switch {
	case next == AssessmentCanceled:
		return !s.Terminal()
	case s == AssessmentNew && next == AssessmentContacted:
		return true
	case s == AssessmentScheduled && next == AssessmentCompleted:
		return true
	}
	return false
}

// MeetingKind distinguishes the approval meeting from follow-ups.
type MeetingKind string

const (
	MeetingInitial  MeetingKind = "initial"
	MeetingFollowUp MeetingKind = "follow_up"
)

// Assessment is a free trial-lesson request.
type Assessment struct {
	ID            string              `db:"id" json:"id"`
	StudentName   string              `db:"student_name" json:"student_name"`
	ParentName    *string             `db:"parent_name" json:"parent_name,omitempty"`
	Email         string              `db:"email" json:"email"`
	Phone         *string             `db:"phone" json:"phone,omitempty"`
	ClassLevel    int                 `db:"class_level" json:"class_level"`
	Subjects      pq.StringArray      `db:"subjects" json:"subjects"`
	PreferredDate *string             `db:"preferred_date" json:"preferred_date,omitempty"`
	PreferredTime *string             `db:"preferred_time" json:"preferred_time,omitempty"`
	Timezone      string              `db:"timezone" json:"timezone"`
	Message       *string             `db:"message" json:"message,omitempty"`
	Status        AssessmentStatus    `db:"status" json:"status"`
	Meetings      []AssessmentMeeting `db:"-" json:"meetings"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// AssessmentMeeting is one provisioned meeting for an assessment. Meetings are appended
// and never removed.
type AssessmentMeeting struct {
	ID              string         `db:"id" json:"id"`
	AssessmentID    string         `db:"assessment_id" json:"assessment_id"`
	TeacherIDs      pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
	ScheduledDate   string         `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime   string         `db:"scheduled_time" json:"scheduled_time"`
	DurationMinutes int            `db:"duration_minutes" json:"duration_minutes"`
	JoinURL         string         `db:"join_url" json:"join_url"`
	StartURL        string         `db:"start_url" json:"start_url"`
	MeetingID       string         `db:"meeting_id" json:"meeting_id"`
	HostEmail       string         `db:"host_email" json:"host_email"`
	Kind            MeetingKind    `db:"kind" json:"kind"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// TeacherMeeting is a meeting row joined with the owning assessment, as seen by the
// availability resolver.
type TeacherMeeting struct {
	AssessmentMeeting
	StudentName string `db:"student_name"`
}

// AssessmentFilter narrows list queries.
type AssessmentFilter struct {
	Status   *AssessmentStatus
	Search   string
	Page     int
	PageSize int
}
