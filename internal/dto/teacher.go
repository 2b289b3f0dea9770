package dto

// CreateTeacherRequest registers a tutor.
type CreateTeacherRequest struct {
	Email       string   `json:"email" validate:"required,email"`
	FullName    string   `json:"fullName" validate:"required,min=2,max=120"`
	Password    string   `json:"password" validate:"required,min=8"`
	Subjects    []string `json:"subjects" validate:"omitempty,max=20,dive,required,max=60"`
	Bio         *string  `json:"bio" validate:"omitempty,max=2000"`
	Phone       *string  `json:"phone" validate:"omitempty,max=32"`
	Address     *string  `json:"address" validate:"omitempty,max=300"`
	BankAccount *string  `json:"bankAccount" validate:"omitempty,max=64"`
}

// UpdateTeacherRequest patches a tutor; nil fields are left unchanged.
type UpdateTeacherRequest struct {
	Email       *string  `json:"email" validate:"omitempty,email"`
	FullName    *string  `json:"fullName" validate:"omitempty,min=2,max=120"`
	Subjects    []string `json:"subjects" validate:"omitempty,max=20,dive,required,max=60"`
	Bio         *string  `json:"bio" validate:"omitempty,max=2000"`
	Phone       *string  `json:"phone" validate:"omitempty,max=32"`
	Address     *string  `json:"address" validate:"omitempty,max=300"`
	BankAccount *string  `json:"bankAccount" validate:"omitempty,max=64"`
	Active      *bool    `json:"active"`
}
