package business

import (
	"time"

	"github.com/google/uuid"
)

type Business struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Address     *string   `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile is the owner-editable part of a Business.
type Profile struct {
	Name        string
	Slug        string
	Description *string
	Phone       *string
	Email       *string
	Address     *string
}

// Service is a bookable offering of a business.
type Service struct {
	ID              uuid.UUID `json:"id"`
	BusinessID      uuid.UUID `json:"business_id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           *float64  `json:"price,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ServicePatch lists the fields to overwrite; nil fields are kept.
type ServicePatch struct {
	Name            *string
	Description     *string
	DurationMinutes *int
	Price           *float64
	IsActive        *bool
}
