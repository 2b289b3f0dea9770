package models

import (
	"time"

	"github.com/lib/pq"
)

// Teacher is a tutor. Phone, Address and BankAccount are stored encrypted and are nil when
// absent or when the stored ciphertext cannot be decrypted.
type Teacher struct {
	ID           string         `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	FullName     string         `db:"full_name" json:"full_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Subjects     pq.StringArray `db:"subjects" json:"subjects"`
	Bio          *string        `db:"bio" json:"bio,omitempty"`
	Phone        *string        `db:"phone" json:"phone,omitempty"`
	Address      *string        `db:"address" json:"address,omitempty"`
	BankAccount  *string        `db:"bank_account" json:"bank_account,omitempty"`
	Active       bool           `db:"active" json:"active"`
	LastLogin    *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Subject   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
