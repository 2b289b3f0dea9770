package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContactMessage is an inquiry submitted through the public contact form.
type ContactMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Subject   string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Message   string             `bson:"message" json:"message"`
	Handled   bool               `bson:"handled" json:"handled"`
	HandledAt *time.Time         `bson:"handled_at,omitempty" json:"handled_at,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// ContactFilter narrows inbox listings.
type ContactFilter struct {
	Handled  *bool
	Page     int
	PageSize int
}
