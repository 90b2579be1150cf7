package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrUniqueViolation is returned by stores when an insert or update hits
	// the active-slot uniqueness constraint.
	ErrUniqueViolation = errors.New("active appointment already exists for slot")
	ErrStoreTimeout    = errors.New("storage request timed out")
	// ErrUnknownBusiness is returned when an insert references a business
	// that does not exist.
	ErrUnknownBusiness = errors.New("business does not exist")
)

// ValidationError rejects a request before any storage call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type ConflictReason string

const (
	ReasonSlotTaken       ConflictReason = "SLOT_TAKEN"
	ReasonSlotUnavailable ConflictReason = "SLOT_UNAVAILABLE"
)

// ConflictError means the requested slot cannot be held by this request.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot conflict: %s", e.Reason)
}

// UserMessage is safe to show to a customer.
func (e *ConflictError) UserMessage() string {
	if e.Reason == ReasonSlotUnavailable {
		return "Selected time slot is not available."
	}
	return "This time slot is no longer available. Please select another time."
}

// AvailabilityLookupError wraps a store failure while answering the
// availability questions of slot generation.
type AvailabilityLookupError struct {
	Op  string
	Err error
}

func (e *AvailabilityLookupError) Error() string {
	return fmt.Sprintf("availability lookup failed (%s): %v", e.Op, e.Err)
}

func (e *AvailabilityLookupError) Unwrap() error { return e.Err }

// PolicyError is returned when a customer action falls outside the
// cancellation notice period.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

// IsConflict reports whether err is a ConflictError with the given reason.
func IsConflict(err error, reason ConflictReason) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Reason == reason
}
