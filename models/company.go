package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is the write-payload shape for the company entity.
type Company struct {
	ID          uuid.UUID `json:"id,omitempty" db:"id"`
	Name        string    `json:"name" db:"name" validate:"required,max=255"`
	Description string    `json:"description" db:"description" validate:"max=2000"`
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id" validate:"required"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the Company model
func (Company) TableName() string {
	return "companies"
}
