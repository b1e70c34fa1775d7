package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking is the write-payload shape for the booking entity.
type Booking struct {
	ID        uuid.UUID `json:"id,omitempty" db:"id"`
	StartDate time.Time `json:"start_date" db:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" db:"end_date" validate:"required,gtefield=StartDate"`
	UserID    uuid.UUID `json:"user_id" db:"user_id" validate:"required"`
	CarID     uuid.UUID `json:"car_id" db:"car_id" validate:"required"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}
