package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/logging"
	"github.com/hackgods/booking-platform/internal/metrics"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
)

type Options struct {
	RequestTimeout            time.Duration
	Slots                     SlotOptions
	EnforceCancellationWindow bool
	CancellationNotice        time.Duration
	Now                       func() time.Time
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		RequestTimeout:            cfg.RequestTimeout,
		Slots:                     SlotOptions{DurationAware: cfg.Booking.DurationAwareBlocking},
		EnforceCancellationWindow: cfg.Booking.EnforceCancellationWindow,
		CancellationNotice:        cfg.Booking.CancellationNotice,
	}
}

// SlotAllocator computes bookable slots and commits bookings against a
// Store. It holds no mutable state; correctness under concurrent writers
// comes from the store's active-slot uniqueness constraint.
type SlotAllocator struct {
	store Store
	opts  Options
}

func NewSlotAllocator(store Store, opts Options) *SlotAllocator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.CancellationNotice <= 0 {
		opts.CancellationNotice = DefaultCancellationNotice
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SlotAllocator{store: store, opts: opts}
}

// GenerateSlots returns the sorted bookable times of businessID on date.
// A closed or fully booked day yields an empty slice. Store failures come
// back as *AvailabilityLookupError.
func (a *SlotAllocator) GenerateSlots(ctx context.Context, businessID uuid.UUID, date time.Time) ([]ClockTime, error) {
	if businessID == uuid.Nil {
		return nil, &ValidationError{Field: "business_id", Reason: "is required"}
	}
	if date.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "is required"}
	}
	date = DateOf(date)

	var windows []AvailabilityWindow
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		windows, err = a.store.FetchAvailabilityWindows(ctx, businessID, int(date.Weekday()))
		return err
	})
	if err != nil {
		return nil, &AvailabilityLookupError{Op: "fetch availability windows", Err: err}
	}
	if len(windows) == 0 {
		return []ClockTime{}, nil
	}

	var booked []BookedTime
	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		booked, err = a.store.FetchBookedTimes(ctx, businessID, date)
		return err
	})
	if err != nil {
		return nil, &AvailabilityLookupError{Op: "fetch booked times", Err: err}
	}

	return ComputeSlots(windows, booked, a.opts.Slots), nil
}

type SlotsResult struct {
	Date     time.Time
	Slots    []ClockTime
	Fallback bool
}

// AvailableSlots is GenerateSlots for display: when availability cannot be
// looked up it serves the fixed fallback grid so customers can still book.
func (a *SlotAllocator) AvailableSlots(ctx context.Context, businessID uuid.UUID, date time.Time) (SlotsResult, error) {
	slots, err := a.GenerateSlots(ctx, businessID, date)

	var lookupErr *AvailabilityLookupError
	if errors.As(err, &lookupErr) {
		logging.FromContext(ctx).WithError(err).WithField("business_id", businessID).
			Warn("availability lookup failed, serving fallback slots")
		metrics.RecordSlotLookup(true)
		return SlotsResult{Date: DateOf(date), Slots: FallbackSlots(), Fallback: true}, nil
	}
	if err != nil {
		return SlotsResult{}, err
	}

	metrics.RecordSlotLookup(false)
	return SlotsResult{Date: DateOf(date), Slots: slots}, nil
}

type BookingRequest struct {
	BusinessID    uuid.UUID
	ServiceID     *uuid.UUID
	Date          time.Time
	Time          ClockTime
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	Notes         *string
}

// Validate runs the checks CommitBooking applies before any store call.
func (r BookingRequest) Validate() error {
	_, err := r.normalize()
	return err
}

func (r BookingRequest) normalize() (NewAppointment, error) {
	name := strings.TrimSpace(r.CustomerName)
	phone := strings.TrimSpace(r.CustomerPhone)

	switch {
	case r.BusinessID == uuid.Nil:
		return NewAppointment{}, &ValidationError{Field: "business_id", Reason: "is required"}
	case name == "":
		return NewAppointment{}, &ValidationError{Field: "customer_name", Reason: "is required"}
	case phone == "":
		return NewAppointment{}, &ValidationError{Field: "customer_phone", Reason: "is required"}
	case r.Date.IsZero():
		return NewAppointment{}, &ValidationError{Field: "date", Reason: "is required"}
	case !r.Time.IsTimeOfDay():
		return NewAppointment{}, &ValidationError{Field: "time", Reason: "must be between 00:00 and 23:59"}
	}

	email := trimmedOrNil(r.CustomerEmail)
	if email != nil && !strings.Contains(*email, "@") {
		return NewAppointment{}, &ValidationError{Field: "customer_email", Reason: "is not an email address"}
	}

	return NewAppointment{
		BusinessID:    r.BusinessID,
		ServiceID:     r.ServiceID,
		CustomerName:  name,
		CustomerPhone: phone,
		CustomerEmail: email,
		Date:          DateOf(r.Date),
		Time:          r.Time,
		Status:        StatusConfirmed,
		Notes:         trimmedOrNil(r.Notes),
	}, nil
}

type commitPhase int

const (
	phasePreCheck commitPhase = iota
	phaseInsert
	phaseDone
)

func (p commitPhase) String() string {
	switch p {
	case phasePreCheck:
		return "precheck"
	case phaseInsert:
		return "insert"
	}
	return "done"
}

type commitOutcome int

const (
	commitPending commitOutcome = iota
	commitCreated
	commitConflict
)

// bookingCommit walks one booking through the pre-check and the
// authoritative insert. The pre-check only gives a fast answer in the
// common case; the insert's uniqueness constraint decides.
type bookingCommit struct {
	rec        NewAppointment
	phase      commitPhase
	outcome    commitOutcome
	created    *Appointment
	caughtInto commitPhase
}

func (c *bookingCommit) conflict() {
	c.outcome = commitConflict
	c.caughtInto = c.phase
	c.phase = phaseDone
}

// CommitBooking reserves the requested slot. It returns the stored
// appointment, a *ValidationError before touching the store, or a
// *ConflictError with ReasonSlotTaken when another active appointment
// holds the slot.
func (a *SlotAllocator) CommitBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	rec, err := req.normalize()
	if err != nil {
		metrics.RecordCommit(metrics.OutcomeValidation)
		return nil, err
	}

	c := &bookingCommit{rec: rec, phase: phasePreCheck}
	for c.phase != phaseDone {
		var err error
		switch c.phase {
		case phasePreCheck:
			err = a.preCheck(ctx, c)
		case phaseInsert:
			err = a.insert(ctx, c)
		}
		if err != nil {
			metrics.RecordCommit(metrics.OutcomeError)
			return nil, err
		}
	}

	if c.outcome == commitConflict {
		metrics.RecordCommit(metrics.OutcomeSlotTaken)
		metrics.RecordPhaseConflict(c.caughtInto.String())
		logging.FromContext(ctx).WithFields(map[string]any{
			"business_id": rec.BusinessID,
			"date":        FormatDate(rec.Date),
			"time":        rec.Time.String(),
			"phase":       c.caughtInto.String(),
		}).Info("booking rejected, slot taken")
		return nil, &ConflictError{Reason: ReasonSlotTaken}
	}

	metrics.RecordCommit(metrics.OutcomeCreated)
	a.logEvent(ctx, c.created.ID, EventAppointmentBooked, map[string]any{
		"business_id": rec.BusinessID.String(),
		"date":        FormatDate(rec.Date),
		"time":        rec.Time.String(),
	})
	return c.created, nil
}

func (a *SlotAllocator) preCheck(ctx context.Context, c *bookingCommit) error {
	var existing *Appointment
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = a.store.FindActiveAppointment(ctx, c.rec.BusinessID, c.rec.Date, c.rec.Time)
		return err
	})

	switch {
	case err == nil && existing != nil:
		c.conflict()
	case err == nil, errors.Is(err, ErrAppointmentNotFound):
		c.phase = phaseInsert
	default:
		return fmt.Errorf("check slot: %w", err)
	}
	return nil
}

func (a *SlotAllocator) insert(ctx context.Context, c *bookingCommit) error {
	var created *Appointment
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		created, err = a.store.InsertAppointment(ctx, c.rec)
		return err
	})

	switch {
	case err == nil:
		c.created = created
		c.outcome = commitCreated
		c.phase = phaseDone
	case errors.Is(err, ErrUniqueViolation):
		c.conflict()
	default:
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

type RescheduleRequest struct {
	AppointmentID uuid.UUID
	BusinessID    uuid.UUID
	Date          time.Time
	Time          ClockTime
}

// RescheduleAppointment moves an appointment to a new date and time when
// that time is currently offered by GenerateSlots. The id is kept.
func (a *SlotAllocator) RescheduleAppointment(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	switch {
	case req.AppointmentID == uuid.Nil:
		return nil, &ValidationError{Field: "appointment_id", Reason: "is required"}
	case req.BusinessID == uuid.Nil:
		return nil, &ValidationError{Field: "business_id", Reason: "is required"}
	case req.Date.IsZero():
		return nil, &ValidationError{Field: "date", Reason: "is required"}
	case !req.Time.IsTimeOfDay():
		return nil, &ValidationError{Field: "time", Reason: "must be between 00:00 and 23:59"}
	}

	appt, err := a.get(ctx, req.AppointmentID)
	if err != nil {
		metrics.RecordReschedule(metrics.OutcomeError)
		return nil, err
	}
	if appt.BusinessID != req.BusinessID {
		metrics.RecordReschedule(metrics.OutcomeError)
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusConfirmed {
		metrics.RecordReschedule(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}
	if a.opts.EnforceCancellationWindow && !CanCancel(*appt, a.opts.Now(), a.opts.CancellationNotice) {
		metrics.RecordReschedule("policy")
		return nil, a.policyError("rescheduled")
	}

	slots, err := a.GenerateSlots(ctx, req.BusinessID, req.Date)
	if err != nil {
		metrics.RecordReschedule(metrics.OutcomeError)
		return nil, err
	}
	if !containsSlot(slots, req.Time) {
		metrics.RecordReschedule("slot_unavailable")
		return nil, &ConflictError{Reason: ReasonSlotUnavailable}
	}

	date := DateOf(req.Date)
	at := req.Time
	var updated *Appointment
	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		updated, err = a.store.UpdateAppointmentFields(ctx, req.AppointmentID, AppointmentUpdate{Date: &date, Time: &at})
		return err
	})
	if errors.Is(err, ErrUniqueViolation) {
		// Someone took the slot between the availability check and the update.
		metrics.RecordReschedule(metrics.OutcomeSlotTaken)
		return nil, &ConflictError{Reason: ReasonSlotTaken}
	}
	if err != nil {
		metrics.RecordReschedule(metrics.OutcomeError)
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}

	metrics.RecordReschedule("rescheduled")
	a.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from_date": FormatDate(appt.Date),
		"from_time": appt.Time.String(),
		"to_date":   FormatDate(date),
		"to_time":   at.String(),
	})
	return updated, nil
}

// UpdateStatus applies a business-side status change, e.g. marking an
// appointment completed or no_show.
func (a *SlotAllocator) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	appt, err := a.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.transition(ctx, appt, to)
}

// CancelAppointment is the customer cancellation path. The notice period is
// only checked when EnforceCancellationWindow is set.
func (a *SlotAllocator) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := a.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.opts.EnforceCancellationWindow && !CanCancel(*appt, a.opts.Now(), a.opts.CancellationNotice) {
		return nil, a.policyError("cancelled")
	}
	return a.transition(ctx, appt, StatusCancelled)
}

// CanCustomerCancel is the capability check shown next to an appointment.
func (a *SlotAllocator) CanCustomerCancel(appt Appointment) bool {
	return CanCancel(appt, a.opts.Now(), a.opts.CancellationNotice)
}

func (a *SlotAllocator) transition(ctx context.Context, appt *Appointment, to AppointmentStatus) (*Appointment, error) {
	from := appt.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}

	var updated *Appointment
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		updated, err = a.store.UpdateAppointmentFields(ctx, appt.ID, AppointmentUpdate{Status: &to, FromStatus: &from})
		return err
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		// The row exists, so the status guard failed: it changed underneath us.
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	a.logEvent(ctx, updated.ID, EventAppointmentStatus, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return updated, nil
}

func (a *SlotAllocator) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if id == uuid.Nil {
		return nil, &ValidationError{Field: "appointment_id", Reason: "is required"}
	}
	var appt *Appointment
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		appt, err = a.store.GetAppointment(ctx, id)
		return err
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (a *SlotAllocator) policyError(action string) error {
	hours := int(a.opts.CancellationNotice / time.Hour)
	return &PolicyError{Reason: fmt.Sprintf("appointments can only be %s more than %d hours in advance", action, hours)}
}

// call bounds one store round trip by the configured request timeout.
func (a *SlotAllocator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrStoreTimeout, err)
	}
	return err
}

func (a *SlotAllocator) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	log := logging.FromContext(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warnf("failed to marshal event payload for %s", eventType)
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     a.opts.Now(),
	}

	if err := a.call(ctx, func(ctx context.Context) error { return a.store.InsertEvent(ctx, ev) }); err != nil {
		log.WithError(err).Warnf("failed to insert event log %s for appointment %s", eventType, appointmentID)
	}
}

func containsSlot(slots []ClockTime, t ClockTime) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
