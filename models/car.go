package models

import (
	"time"

	"github.com/google/uuid"
)

// Car is the write-payload shape for the car entity.
type Car struct {
	ID           uuid.UUID `json:"id,omitempty" db:"id"`
	Make         string    `json:"make" db:"make" validate:"required,max=255"`
	Model        string    `json:"model" db:"model" validate:"required,max=255"`
	Year         int       `json:"year" db:"year" validate:"required,gte=1900,lte=2100"`
	Location     string    `json:"location" db:"location" validate:"max=255"`
	Availability bool      `json:"availability" db:"availability"`
	CompanyID    uuid.UUID `json:"company_id" db:"company_id" validate:"required"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the Car model
func (Car) TableName() string {
	return "cars"
}
