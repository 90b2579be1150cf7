package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store contains the storage operations the slot allocator depends on.
type Store interface {
	// Availability lookups, both filtered server side: only windows with
	// is_available and only appointments whose status is not cancelled.
	FetchAvailabilityWindows(ctx context.Context, businessID uuid.UUID, dayOfWeek int) ([]AvailabilityWindow, error)
	FetchBookedTimes(ctx context.Context, businessID uuid.UUID, date time.Time) ([]BookedTime, error)

	// For conflict checks. Returns ErrAppointmentNotFound when the slot is free.
	FindActiveAppointment(ctx context.Context, businessID uuid.UUID, date time.Time, at ClockTime) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Creation and updates. Both return ErrUniqueViolation when the active
	// slot constraint rejects the row.
	InsertAppointment(ctx context.Context, rec NewAppointment) (*Appointment, error)
	UpdateAppointmentFields(ctx context.Context, id uuid.UUID, fields AppointmentUpdate) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// CustomerLookup selects appointments by exactly one contact field.
type CustomerLookup struct {
	Phone string
	Email string
}

// Reader serves the dashboard and customer portal listings.
type Reader interface {
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListBusinessAppointments(ctx context.Context, businessID uuid.UUID, date *time.Time) ([]AppointmentDetail, error)
	ListCustomerAppointments(ctx context.Context, lookup CustomerLookup) ([]AppointmentDetail, error)
	CountAppointments(ctx context.Context, businessID uuid.UUID, window StatsWindow) (Stats, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
}

// Repository is the full persistence surface of the package.
type Repository interface {
	Store
	Reader
}
