package models

import "time"

// TeacherAvailability is a recurring weekly window in which a teacher can be booked.
// StartTime and EndTime are zero-padded HH:MM strings; DayOfWeek is 0 (Sunday) to 6.
type TeacherAvailability struct {
	ID                 string     `db:"id" json:"id"`
	TeacherID          string     `db:"teacher_id" json:"teacher_id"`
	DayOfWeek          int        `db:"day_of_week" json:"day_of_week"`
	StartTime          string     `db:"start_time" json:"start_time"`
	EndTime            string     `db:"end_time" json:"end_time"`
	Subject            *string    `db:"subject" json:"subject,omitempty"`
	LastUpdatedFromCSV *time.Time `db:"last_updated_from_csv" json:"last_updated_from_csv,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailabilityExportRow joins a window with its teacher for CSV export.
type AvailabilityExportRow struct {
	TeacherID    string  `db:"teacher_id"`
	TeacherEmail string  `db:"teacher_email"`
	TeacherName  string  `db:"teacher_name"`
	DayOfWeek    int     `db:"day_of_week"`
	StartTime    string  `db:"start_time"`
	EndTime      string  `db:"end_time"`
	Subject      *string `db:"subject"`
}
