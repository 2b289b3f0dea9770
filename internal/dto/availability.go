package dto

import "time"

// AvailabilityCheckRequest asks whether teachers are free for a candidate slot.
type AvailabilityCheckRequest struct {
	TeacherIDs            []string `json:"teacherIds" validate:"required,min=1,dive,required"`
	Date                  string   `json:"date" validate:"required"`
	Time                  string   `json:"time" validate:"required"`
	DurationMinutes       int      `json:"durationMinutes" validate:"omitempty,min=5,max=480"`
	ExcludeAssessmentID   string   `json:"excludeAssessmentId,omitempty"`
	ExcludeClassRequestID string   `json:"excludeClassRequestId,omitempty"`
}

// Conflict is an existing booking overlapping the candidate slot.
type Conflict struct {
	Title string `json:"title"`
	Time  string `json:"time"`
}

// AvailabilityWindow is a configured weekly window rendered for the checked date.
type AvailabilityWindow struct {
	ID        string  `json:"id"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Subject   *string `json:"subject,omitempty"`
}

// AvailabilityResult is the resolver verdict for one teacher.
type AvailabilityResult struct {
	TeacherID          string               `json:"teacherId"`
	TeacherName        string               `json:"teacherName"`
	Available          bool                 `json:"available"`
	WithinAvailability bool                 `json:"withinAvailability"`
	Windows            []AvailabilityWindow `json:"windows"`
	Conflicts          []Conflict           `json:"conflicts"`
}

// UnavailableTeacher is the detail entry of a SCHEDULING_CONFLICT error.
type UnavailableTeacher struct {
	TeacherID   string     `json:"teacherId"`
	TeacherName string     `json:"teacherName"`
	Conflicts   []Conflict `json:"conflicts"`
}

// AvailabilityWindowRequest creates or replaces a weekly window.
type AvailabilityWindowRequest struct {
	DayOfWeek int     `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string  `json:"startTime" validate:"required"`
	EndTime   string  `json:"endTime" validate:"required"`
	Subject   *string `json:"subject,omitempty" validate:"omitempty,max=80"`
}

// ImportRowError reports why a CSV row was rejected. Row numbers are 1-based and count
// the header.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises a CSV availability import.
type ImportResult struct {
	Imported int              `json:"imported"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Removed  int              `json:"removed"`
	Errors   []ImportRowError `json:"errors"`
	Archive  string           `json:"archive,omitempty"`
}

// ExportLink points at a generated file through a signed token.
type ExportLink struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Rows      int       `json:"rows"`
}
