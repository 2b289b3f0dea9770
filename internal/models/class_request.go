package models

import "time"

// ClassRequestStatus tracks the teacher's decision on a booking.
type ClassRequestStatus string

const (
	ClassRequestPending  ClassRequestStatus = "pending"
	ClassRequestAccepted ClassRequestStatus = "accepted"
	ClassRequestRejected ClassRequestStatus = "rejected"
)

// PaymentStatus tracks payment for a booking. Gateway calls are out of scope; the
// fields are recorded as reported.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PackageType is the purchased bundle.
type PackageType string

const (
	PackageSingle      PackageType = "single"
	PackageStarterPack PackageType = "starter_pack"
)

// ClassRequest is a booked or pending tutoring session. Rows are never hard-deleted.
type ClassRequest struct {
	ID               string             `db:"id" json:"id"`
	TeacherID        string             `db:"teacher_id" json:"teacher_id"`
	StudentID        string             `db:"student_id" json:"student_id"`
	Subject          string             `db:"subject" json:"subject"`
	ClassLevel       int                `db:"class_level" json:"class_level"`
	PreferredDate    string             `db:"preferred_date" json:"preferred_date"`
	ScheduleTime     string             `db:"schedule_time" json:"schedule_time"`
	Status           ClassRequestStatus `db:"status" json:"status"`
	PackageType      PackageType        `db:"package_type" json:"package_type"`
	Sessions         int                `db:"sessions" json:"sessions"`
	Amount           float64            `db:"amount" json:"amount"`
	Currency         string             `db:"currency" json:"currency"`
	PaymentStatus    PaymentStatus      `db:"payment_status" json:"payment_status"`
	PaymentReference *string            `db:"payment_reference" json:"payment_reference,omitempty"`
	Note             *string            `db:"note" json:"note,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// ClassRequestDetail adds display names for list views and notifications.
type ClassRequestDetail struct {
	ClassRequest
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string `db:"teacher_email" json:"teacher_email"`
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// ClassRequestFilter narrows list queries.
type ClassRequestFilter struct {
	TeacherID     string
	StudentID     string
	Status        *ClassRequestStatus
	PaymentStatus *PaymentStatus
	Date          string
	Page          int
	PageSize      int
}
