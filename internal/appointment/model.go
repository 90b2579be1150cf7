package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Valid reports whether s is one of the known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// AvailabilityWindow is a recurring weekly range during which a business
// accepts bookings. DayOfWeek follows time.Weekday (0 = Sunday).
type AvailabilityWindow struct {
	ID                  uuid.UUID
	BusinessID          uuid.UUID
	DayOfWeek           int
	StartTime           ClockTime
	EndTime             ClockTime
	SlotDurationMinutes int
	IsAvailable         bool
}

type Appointment struct {
	ID            uuid.UUID
	BusinessID    uuid.UUID
	ServiceID     *uuid.UUID
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	Date          time.Time // calendar date, midnight UTC
	Time          ClockTime
	Status        AppointmentStatus
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StartsAt combines the calendar date and time of day in loc. No timezone
// normalization happens anywhere else; callers pick the business location.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), a.Time.Hour(), a.Time.Minute(), 0, 0, loc)
}

// BookedTime is the occupancy of one non-cancelled appointment on a day.
// DurationMinutes is the booked service duration, zero when unknown.
type BookedTime struct {
	Time            ClockTime
	DurationMinutes int
}

// NewAppointment is the row handed to the store on insert. The store
// assigns the id and timestamps.
type NewAppointment struct {
	BusinessID    uuid.UUID
	ServiceID     *uuid.UUID
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	Date          time.Time
	Time          ClockTime
	Status        AppointmentStatus
	Notes         *string
}

// AppointmentUpdate lists the fields to overwrite. Nil fields are left
// untouched. FromStatus, when set, makes the update conditional on the
// current status.
type AppointmentUpdate struct {
	Date       *time.Time
	Time       *ClockTime
	Status     *AppointmentStatus
	FromStatus *AppointmentStatus
}

type ServiceSummary struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	DurationMinutes int
	Price           *float64
}

type AppointmentDetail struct {
	Appointment
	Service *ServiceSummary
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type Stats struct {
	Today     int `json:"today"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}
