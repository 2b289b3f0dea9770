package dto

import "github.com/noah-isme/tutorhub-api/internal/models"

// CreateClassRequestRequest is a student's booking.
type CreateClassRequestRequest struct {
	TeacherID        string             `json:"teacherId" validate:"required"`
	Subject          string             `json:"subject" validate:"required,max=80"`
	ClassLevel       int                `json:"class" validate:"required,min=2,max=12"`
	PreferredDate    string             `json:"preferredDate" validate:"required"`
	ScheduleTime     string             `json:"scheduleTime" validate:"required"`
	PackageType      models.PackageType `json:"packageType" validate:"required,oneof=single starter_pack"`
	PaymentReference string             `json:"paymentReference" validate:"omitempty,max=120"`
	Note             string             `json:"note" validate:"omitempty,max=1000"`
}

// UpdateClassRequestStatusRequest accepts or rejects a booking.
type UpdateClassRequestStatusRequest struct {
	Status models.ClassRequestStatus `json:"status" validate:"required,oneof=accepted rejected"`
}

// UpdatePaymentRequest records the payment outcome reported by the gateway.
type UpdatePaymentRequest struct {
	PaymentStatus    models.PaymentStatus `json:"paymentStatus" validate:"required,oneof=pending paid failed refunded"`
	PaymentReference string               `json:"paymentReference" validate:"omitempty,max=120"`
}
