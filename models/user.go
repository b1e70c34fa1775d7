package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the write-payload shape for the user entity.
type User struct {
	ID        uuid.UUID `json:"id,omitempty" db:"id"`
	Email     string    `json:"email" db:"email" validate:"required,email"`
	FirstName string    `json:"first_name" db:"first_name" validate:"max=255"`
	LastName  string    `json:"last_name" db:"last_name" validate:"max=255"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}
