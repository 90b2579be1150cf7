package appointment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/appointment/appointmenttest"
)

var monday = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts appointment.Options) (*appointmenttest.Store, *appointment.SlotAllocator, uuid.UUID) {
	t.Helper()
	store := appointmenttest.New()
	businessID := uuid.New()
	store.AddWindow(appointment.AvailabilityWindow{
		BusinessID:          businessID,
		DayOfWeek:           int(time.Monday),
		StartTime:           appointment.MustClock("09:00"),
		EndTime:             appointment.MustClock("10:00"),
		SlotDurationMinutes: 30,
		IsAvailable:         true,
	})
	return store, appointment.NewSlotAllocator(store, opts), businessID
}

func booking(businessID uuid.UUID, at string) appointment.BookingRequest {
	return appointment.BookingRequest{
		BusinessID:    businessID,
		Date:          monday,
		Time:          appointment.MustClock(at),
		CustomerName:  "Ada Lovelace",
		CustomerPhone: "+15550100",
	}
}

func TestGenerateSlotsMondayScenario(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})

	slots, err := alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.Equal(t, []appointment.ClockTime{appointment.MustClock("09:00"), appointment.MustClock("09:30")}, slots)

	created, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, created.Status)

	slots, err = alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.Equal(t, []appointment.ClockTime{appointment.MustClock("09:30")}, slots)

	_, err = alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.Error(t, err)
	assert.True(t, appointment.IsConflict(err, appointment.ReasonSlotTaken))

	var ce *appointment.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "This time slot is no longer available. Please select another time.", ce.UserMessage())

	assert.Len(t, store.Active(businessID, monday), 1)
}

func TestGenerateSlotsClosedDay(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := alloc.GenerateSlots(context.Background(), businessID, tuesday)
	require.NoError(t, err)
	require.NotNil(t, slots)
	assert.Empty(t, slots)
	assert.Zero(t, store.Calls("FetchBookedTimes"), "no windows means no booking lookup")
}

func TestGenerateSlotsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, alloc, businessID := newFixture(t, appointment.Options{})

	first, err := alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	second, err := alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSlotsIgnoresCancelled(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})
	store.Seed(appointment.Appointment{
		BusinessID: businessID,
		Date:       monday,
		Time:       appointment.MustClock("09:00"),
		Status:     appointment.StatusCancelled,
	})

	slots, err := alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.Contains(t, slots, appointment.MustClock("09:00"))

	_, err = alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	assert.NoError(t, err, "a cancelled appointment does not hold its slot")
}

func TestGenerateSlotsLookupErrors(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})
	store.BookedErr = appointmenttest.ErrDown

	_, err := alloc.GenerateSlots(ctx, businessID, monday)
	var lookupErr *appointment.AvailabilityLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "fetch booked times", lookupErr.Op)
	assert.ErrorIs(t, err, appointmenttest.ErrDown)

	res, err := alloc.AvailableSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, appointment.FallbackSlots(), res.Slots)
}

func TestAvailableSlotsValidationIsNotMaskedByFallback(t *testing.T) {
	_, alloc, _ := newFixture(t, appointment.Options{})

	_, err := alloc.AvailableSlots(context.Background(), uuid.Nil, monday)
	var ve *appointment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "business_id", ve.Field)
}

func TestGenerateSlotsCandidateCount(t *testing.T) {
	ctx := context.Background()
	for _, step := range []int{15, 20, 25, 30, 45, 60, 90} {
		t.Run(fmt.Sprintf("step %d", step), func(t *testing.T) {
			store := appointmenttest.New()
			businessID := uuid.New()
			start, end := appointment.MustClock("08:10"), appointment.MustClock("17:00")
			store.AddWindow(appointment.AvailabilityWindow{
				BusinessID:          businessID,
				DayOfWeek:           int(time.Monday),
				StartTime:           start,
				EndTime:             end,
				SlotDurationMinutes: step,
				IsAvailable:         true,
			})

			slots, err := appointment.NewSlotAllocator(store, appointment.Options{}).GenerateSlots(ctx, businessID, monday)
			require.NoError(t, err)
			want := (int(end-start) + step - 1) / step
			assert.Len(t, slots, want)
		})
	}
}

func TestCommitBookingValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*appointment.BookingRequest)
		field string
	}{
		{"blank name", func(r *appointment.BookingRequest) { r.CustomerName = "   " }, "customer_name"},
		{"missing phone", func(r *appointment.BookingRequest) { r.CustomerPhone = "" }, "customer_phone"},
		{"missing business", func(r *appointment.BookingRequest) { r.BusinessID = uuid.Nil }, "business_id"},
		{"missing date", func(r *appointment.BookingRequest) { r.Date = time.Time{} }, "date"},
		{"time past midnight", func(r *appointment.BookingRequest) { r.Time = appointment.MustClock("24:00") }, "time"},
		{"bad email", func(r *appointment.BookingRequest) { e := "nope"; r.CustomerEmail = &e }, "customer_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, alloc, businessID := newFixture(t, appointment.Options{})
			req := booking(businessID, "09:00")
			tt.edit(&req)

			_, err := alloc.CommitBooking(context.Background(), req)
			var ve *appointment.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, store.TotalCalls(), "validation must fail before any store call")
		})
	}
}

func TestCommitBookingTrimsAndLogsEvent(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})
	req := booking(businessID, "09:30")
	req.CustomerName = "  Grace Hopper "
	email := " grace@example.com "
	blank := "  "
	req.CustomerEmail = &email
	req.Notes = &blank

	created, err := alloc.CommitBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", created.CustomerName)
	require.NotNil(t, created.CustomerEmail)
	assert.Equal(t, "grace@example.com", *created.CustomerEmail)
	assert.Nil(t, created.Notes)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, appointment.EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, created.ID, *events[0].AppointmentID)
	assert.JSONEq(t, fmt.Sprintf(`{"business_id":%q,"date":"2024-01-15","time":"09:30"}`, businessID), string(events[0].Payload))
}

func TestCommitBookingEventFailureDoesNotFailBooking(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})
	store.EventErr = errors.New("event table missing")

	_, err := alloc.CommitBooking(context.Background(), booking(businessID, "09:00"))
	assert.NoError(t, err)
}

func TestCommitBookingConcurrentSameSlot(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})

	// Both commits pass the pre-check before either inserts, so the
	// uniqueness constraint has to decide.
	var barrier sync.WaitGroup
	barrier.Add(2)
	store.AfterFind = func() {
		barrier.Done()
		barrier.Wait()
	}

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := booking(businessID, "09:00")
			req.CustomerName = fmt.Sprintf("customer %d", i)
			_, results[i] = alloc.CommitBooking(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case appointment.IsConflict(err, appointment.ReasonSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, taken)
	assert.Len(t, store.Active(businessID, monday), 1)
	assert.Equal(t, 2, store.Calls("InsertAppointment"))
}

func TestCommitBookingManyConcurrent(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := alloc.CommitBooking(context.Background(), booking(businessID, "09:30"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, appointment.IsConflict(err, appointment.ReasonSlotTaken), "got %v", err)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, store.Active(businessID, monday), 1)
}

func TestCommitBookingStoreFailure(t *testing.T) {
	store, alloc, businessID := newFixture(t, appointment.Options{})
	store.InsertErr = appointmenttest.ErrDown

	_, err := alloc.CommitBooking(context.Background(), booking(businessID, "09:00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appointmenttest.ErrDown)
	assert.False(t, appointment.IsConflict(err, appointment.ReasonSlotTaken))
}

type slowStore struct {
	*appointmenttest.Store
}

func (s slowStore) FindActiveAppointment(ctx context.Context, businessID uuid.UUID, date time.Time, at appointment.ClockTime) (*appointment.Appointment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCommitBookingTimeout(t *testing.T) {
	store, _, businessID := newFixture(t, appointment.Options{})
	alloc := appointment.NewSlotAllocator(slowStore{store}, appointment.Options{RequestTimeout: 10 * time.Millisecond})

	_, err := alloc.CommitBooking(context.Background(), booking(businessID, "09:00"))
	assert.ErrorIs(t, err, appointment.ErrStoreTimeout)
}

func TestRescheduleAppointment(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	moved, err := alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
		AppointmentID: a.ID,
		BusinessID:    businessID,
		Date:          monday,
		Time:          appointment.MustClock("09:30"),
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.Equal(t, appointment.MustClock("09:30"), moved.Time)

	slots, err := alloc.GenerateSlots(ctx, businessID, monday)
	require.NoError(t, err)
	assert.Equal(t, []appointment.ClockTime{appointment.MustClock("09:00")}, slots)

	events := store.Events()
	assert.Equal(t, appointment.EventAppointmentRescheduled, events[len(events)-1].EventType)
}

func TestRescheduleRequiresConfirmed(t *testing.T) {
	ctx := context.Background()

	for _, status := range []appointment.AppointmentStatus{
		appointment.StatusCompleted,
		appointment.StatusCancelled,
		appointment.StatusNoShow,
	} {
		t.Run(string(status), func(t *testing.T) {
			store, alloc, businessID := newFixture(t, appointment.Options{})

			a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
			require.NoError(t, err)
			_, err = alloc.UpdateStatus(ctx, a.ID, status)
			require.NoError(t, err)

			_, err = alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
				AppointmentID: a.ID,
				BusinessID:    businessID,
				Date:          monday,
				Time:          appointment.MustClock("09:30"),
			})
			assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

			for _, active := range store.Active(businessID, monday) {
				assert.NotEqual(t, appointment.MustClock("09:30"), active.Time)
			}
			assert.Zero(t, store.Calls("FetchAvailabilityWindows"), "rejected before slot generation")
		})
	}
}

func TestRescheduleSucceedsIffSlotGenerated(t *testing.T) {
	ctx := context.Background()
	_, alloc, businessID := newFixture(t, appointment.Options{})

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	// Its own current time is booked, so it is never offered back.
	for _, at := range []string{"09:00", "09:30", "09:00", "09:15", "10:00", "14:00"} {
		t.Run(at, func(t *testing.T) {
			slots, err := alloc.GenerateSlots(ctx, businessID, monday)
			require.NoError(t, err)
			offered := false
			for _, s := range slots {
				offered = offered || s == appointment.MustClock(at)
			}

			_, err = alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
				AppointmentID: a.ID,
				BusinessID:    businessID,
				Date:          monday,
				Time:          appointment.MustClock(at),
			})
			if offered {
				assert.NoError(t, err)
			} else {
				assert.True(t, appointment.IsConflict(err, appointment.ReasonSlotUnavailable), "got %v", err)
			}
		})
	}
}

func TestRescheduleUnknownOrForeignAppointment(t *testing.T) {
	ctx := context.Background()
	_, alloc, businessID := newFixture(t, appointment.Options{})

	_, err := alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
		AppointmentID: uuid.New(),
		BusinessID:    businessID,
		Date:          monday,
		Time:          appointment.MustClock("09:30"),
	})
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)
	_, err = alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
		AppointmentID: a.ID,
		BusinessID:    uuid.New(),
		Date:          monday,
		Time:          appointment.MustClock("09:30"),
	})
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestRescheduleLosesRaceToInsert(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	// Someone grabs 09:30 after the slots were generated: simulate by
	// seeding straight into the store once GenerateSlots has run.
	racer := &racingStore{Store: store, businessID: businessID}
	alloc = appointment.NewSlotAllocator(racer, appointment.Options{})

	_, err = alloc.RescheduleAppointment(ctx, appointment.RescheduleRequest{
		AppointmentID: a.ID,
		BusinessID:    businessID,
		Date:          monday,
		Time:          appointment.MustClock("09:30"),
	})
	assert.True(t, appointment.IsConflict(err, appointment.ReasonSlotTaken), "got %v", err)
}

type racingStore struct {
	*appointmenttest.Store
	businessID uuid.UUID
}

func (s *racingStore) FetchBookedTimes(ctx context.Context, businessID uuid.UUID, date time.Time) ([]appointment.BookedTime, error) {
	booked, err := s.Store.FetchBookedTimes(ctx, businessID, date)
	s.Store.Seed(appointment.Appointment{
		BusinessID: s.businessID,
		Date:       monday,
		Time:       appointment.MustClock("09:30"),
		Status:     appointment.StatusConfirmed,
	})
	return booked, err
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store, alloc, businessID := newFixture(t, appointment.Options{})

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	done, err := alloc.UpdateStatus(ctx, a.ID, appointment.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)

	_, err = alloc.UpdateStatus(ctx, a.ID, appointment.StatusConfirmed)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	_, err = alloc.UpdateStatus(ctx, a.ID, appointment.AppointmentStatus("archived"))
	var ve *appointment.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = alloc.UpdateStatus(ctx, uuid.New(), appointment.StatusNoShow)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	events := store.Events()
	last := events[len(events)-1]
	assert.Equal(t, appointment.EventAppointmentStatus, last.EventType)
	assert.JSONEq(t, `{"from":"confirmed","to":"completed"}`, string(last.Payload))
}

func TestCancelFreesSlot(t *testing.T) {
	ctx := context.Background()
	_, alloc, businessID := newFixture(t, appointment.Options{})

	a, err := alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	cancelled, err := alloc.CancelAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)

	_, err = alloc.CommitBooking(ctx, booking(businessID, "09:00"))
	assert.NoError(t, err)

	_, err = alloc.CancelAppointment(ctx, a.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestCancellationWindowEnforcement(t *testing.T) {
	ctx := context.Background()
	now := monday.Add(-20 * time.Hour) // Sunday 04:00, 29h before 09:00

	_, lax, businessID := newFixture(t, appointment.Options{Now: func() time.Time { return now.Add(10 * time.Hour) }})
	a, err := lax.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)
	assert.False(t, lax.CanCustomerCancel(*a))
	_, err = lax.CancelAppointment(ctx, a.ID)
	assert.NoError(t, err, "the window is advisory unless enforced")

	store, _, businessID := newFixture(t, appointment.Options{})
	strict := appointment.NewSlotAllocator(store, appointment.Options{
		EnforceCancellationWindow: true,
		Now:                       func() time.Time { return now.Add(10 * time.Hour) },
	})
	b, err := strict.CommitBooking(ctx, booking(businessID, "09:00"))
	require.NoError(t, err)

	_, err = strict.CancelAppointment(ctx, b.ID)
	var pe *appointment.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "24 hours")

	_, err = strict.RescheduleAppointment(ctx, appointment.RescheduleRequest{
		AppointmentID: b.ID,
		BusinessID:    businessID,
		Date:          monday,
		Time:          appointment.MustClock("09:30"),
	})
	assert.ErrorAs(t, err, &pe)

	early := appointment.NewSlotAllocator(store, appointment.Options{
		EnforceCancellationWindow: true,
		Now:                       func() time.Time { return now },
	})
	assert.True(t, early.CanCustomerCancel(*b))
	_, err = early.CancelAppointment(ctx, b.ID)
	assert.NoError(t, err)
}
