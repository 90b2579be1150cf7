// Package appointmenttest provides an in-memory appointment.Repository for
// tests. It enforces the same active-slot uniqueness as the Postgres index.
package appointmenttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
)

type slotKey struct {
	business uuid.UUID
	date     string
	at       appointment.ClockTime
}

// Store is safe for concurrent use. Err fields, when set, are returned by
// the matching method instead of touching the data.
type Store struct {
	mu           sync.Mutex
	windows      []appointment.AvailabilityWindow
	appointments map[uuid.UUID]*appointment.Appointment
	services     map[uuid.UUID]appointment.ServiceSummary
	events       []appointment.EventLog
	nextEventID  int64
	now          func() time.Time

	calls map[string]int

	WindowsErr error
	BookedErr  error
	FindErr    error
	InsertErr  error
	UpdateErr  error
	EventErr   error

	// AfterFind runs after FindActiveAppointment returns, outside the lock.
	// Tests use it to line up concurrent commits between the two phases.
	AfterFind func()
}

var _ appointment.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		appointments: make(map[uuid.UUID]*appointment.Appointment),
		services:     make(map[uuid.UUID]appointment.ServiceSummary),
		calls:        make(map[string]int),
		now:          time.Now,
	}
}

// AddWindow registers an availability window and returns it with ids filled.
func (s *Store) AddWindow(w appointment.AvailabilityWindow) appointment.AvailabilityWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.windows = append(s.windows, w)
	return w
}

func (s *Store) AddService(svc appointment.ServiceSummary) appointment.ServiceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	s.services[svc.ID] = svc
	return svc
}

// Seed stores appt as-is, bypassing the uniqueness check.
func (s *Store) Seed(appt appointment.Appointment) appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Date = appointment.DateOf(appt.Date)
	s.appointments[appt.ID] = &appt
	return appt
}

// Calls returns how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls counts every store invocation.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appointment.EventLog(nil), s.events...)
}

// Active returns the non-cancelled appointments of a business on date.
func (s *Store) Active(businessID uuid.UUID, date time.Time) []appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	key := appointment.FormatDate(appointment.DateOf(date))
	for _, a := range s.appointments {
		if a.BusinessID == businessID && appointment.FormatDate(a.Date) == key && a.Status != appointment.StatusCancelled {
			out = append(out, *a)
		}
	}
	return out
}

func (s *Store) record(method string) {
	s.calls[method]++
}

func keyOf(a *appointment.Appointment) slotKey {
	return slotKey{business: a.BusinessID, date: appointment.FormatDate(a.Date), at: a.Time}
}

// takenBy reports whether another active appointment holds k.
func (s *Store) takenBy(k slotKey, except uuid.UUID) bool {
	for id, a := range s.appointments {
		if id == except || a.Status == appointment.StatusCancelled {
			continue
		}
		if keyOf(a) == k {
			return true
		}
	}
	return false
}

func (s *Store) FetchAvailabilityWindows(ctx context.Context, businessID uuid.UUID, dayOfWeek int) ([]appointment.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FetchAvailabilityWindows")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.WindowsErr != nil {
		return nil, s.WindowsErr
	}

	var out []appointment.AvailabilityWindow
	for _, w := range s.windows {
		if w.BusinessID == businessID && w.DayOfWeek == dayOfWeek && w.IsAvailable {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) FetchBookedTimes(ctx context.Context, businessID uuid.UUID, date time.Time) ([]appointment.BookedTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FetchBookedTimes")
	if s.BookedErr != nil {
		return nil, s.BookedErr
	}

	key := appointment.FormatDate(date)
	var out []appointment.BookedTime
	for _, a := range s.appointments {
		if a.BusinessID != businessID || appointment.FormatDate(a.Date) != key || a.Status == appointment.StatusCancelled {
			continue
		}
		b := appointment.BookedTime{Time: a.Time}
		if a.ServiceID != nil {
			b.DurationMinutes = s.services[*a.ServiceID].DurationMinutes
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) FindActiveAppointment(ctx context.Context, businessID uuid.UUID, date time.Time, at appointment.ClockTime) (*appointment.Appointment, error) {
	appt, err := s.findActive(businessID, date, at)
	if s.AfterFind != nil {
		s.AfterFind()
	}
	return appt, err
}

func (s *Store) findActive(businessID uuid.UUID, date time.Time, at appointment.ClockTime) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindActiveAppointment")
	if s.FindErr != nil {
		return nil, s.FindErr
	}

	k := slotKey{business: businessID, date: appointment.FormatDate(date), at: at}
	for _, a := range s.appointments {
		if a.Status != appointment.StatusCancelled && keyOf(a) == k {
			cp := *a
			return &cp, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetAppointment")

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) InsertAppointment(ctx context.Context, rec appointment.NewAppointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertAppointment")
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}

	now := s.now()
	a := &appointment.Appointment{
		ID:            uuid.New(),
		BusinessID:    rec.BusinessID,
		ServiceID:     rec.ServiceID,
		CustomerName:  rec.CustomerName,
		CustomerPhone: rec.CustomerPhone,
		CustomerEmail: rec.CustomerEmail,
		Date:          appointment.DateOf(rec.Date),
		Time:          rec.Time,
		Status:        rec.Status,
		Notes:         rec.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if a.Status != appointment.StatusCancelled && s.takenBy(keyOf(a), uuid.Nil) {
		return nil, appointment.ErrUniqueViolation
	}
	s.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAppointmentFields(ctx context.Context, id uuid.UUID, fields appointment.AppointmentUpdate) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateAppointmentFields")
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}

	cur, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if fields.FromStatus != nil && cur.Status != *fields.FromStatus {
		return nil, appointment.ErrAppointmentNotFound
	}

	next := *cur
	if fields.Date != nil {
		next.Date = appointment.DateOf(*fields.Date)
	}
	if fields.Time != nil {
		next.Time = *fields.Time
	}
	if fields.Status != nil {
		next.Status = *fields.Status
	}
	if next.Status != appointment.StatusCancelled && s.takenBy(keyOf(&next), id) {
		return nil, appointment.ErrUniqueViolation
	}
	next.UpdatedAt = s.now()
	s.appointments[id] = &next
	cp := next
	return &cp, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertEvent")
	if s.EventErr != nil {
		return s.EventErr
	}
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) detail(a *appointment.Appointment) appointment.AppointmentDetail {
	d := appointment.AppointmentDetail{Appointment: *a}
	if a.ServiceID != nil {
		if svc, ok := s.services[*a.ServiceID]; ok {
			d.Service = &svc
		}
	}
	return d
}

func (s *Store) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetAppointmentDetail")

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	d := s.detail(a)
	return &d, nil
}

func (s *Store) ListBusinessAppointments(ctx context.Context, businessID uuid.UUID, date *time.Time) ([]appointment.AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListBusinessAppointments")

	out := []appointment.AppointmentDetail{}
	for _, a := range s.appointments {
		if a.BusinessID != businessID {
			continue
		}
		if date != nil && appointment.FormatDate(a.Date) != appointment.FormatDate(*date) {
			continue
		}
		out = append(out, s.detail(a))
	}
	sort.Slice(out, func(i, j int) bool { return lessStart(out[i].Appointment, out[j].Appointment) })
	return out, nil
}

func (s *Store) ListCustomerAppointments(ctx context.Context, lookup appointment.CustomerLookup) ([]appointment.AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListCustomerAppointments")

	out := []appointment.AppointmentDetail{}
	for _, a := range s.appointments {
		match := lookup.Phone != "" && a.CustomerPhone == lookup.Phone
		if lookup.Phone == "" && lookup.Email != "" {
			match = a.CustomerEmail != nil && *a.CustomerEmail == lookup.Email
		}
		if match {
			out = append(out, s.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessStart(out[j].Appointment, out[i].Appointment) })
	return out, nil
}

func (s *Store) CountAppointments(ctx context.Context, businessID uuid.UUID, window appointment.StatsWindow) (appointment.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CountAppointments")

	var st appointment.Stats
	for _, a := range s.appointments {
		if a.BusinessID != businessID {
			continue
		}
		if a.Date.Equal(window.Today) {
			st.Today++
		}
		if !a.Date.Before(window.WeekStart) {
			st.ThisWeek++
		}
		if !a.CreatedAt.Before(window.MonthStart) {
			st.ThisMonth++
		}
		switch a.Status {
		case appointment.StatusCompleted:
			st.Completed++
		case appointment.StatusCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteAppointment")

	if _, ok := s.appointments[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(s.appointments, id)
	return nil
}

func lessStart(a, b appointment.Appointment) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.Time < b.Time
}

// ErrDown is a convenience error for simulating an unreachable database.
var ErrDown = errors.New("connection refused")
