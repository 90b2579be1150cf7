package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/booking-platform/internal/api"
	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/appointment/appointmenttest"
	"github.com/hackgods/booking-platform/internal/business"
	"github.com/hackgods/booking-platform/internal/business/businesstest"
	"github.com/hackgods/booking-platform/internal/ratelimit"
)

const monday = "2024-01-15"

type fixture struct {
	handler    http.Handler
	store      *appointmenttest.Store
	ownerID    uuid.UUID
	businessID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()

	store := appointmenttest.New()
	mgr := business.NewManager(businesstest.New(), store, log)

	ownerID := uuid.New()
	b, err := mgr.Initialize(context.Background(), ownerID, business.Profile{Name: "Corner Cuts"})
	require.NoError(t, err)

	store.AddWindow(appointment.AvailabilityWindow{
		BusinessID:          b.ID,
		DayOfWeek:           int(time.Monday),
		StartTime:           appointment.MustClock("09:00"),
		EndTime:             appointment.MustClock("10:00"),
		SlotDurationMinutes: 30,
		IsAvailable:         true,
	})

	alloc := appointment.NewSlotAllocator(store, appointment.Options{
		Now: func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) },
	})
	up := func(context.Context) error { return nil }

	h := api.NewRouter(api.RouterConfig{
		Allocator:    alloc,
		Appointments: store,
		Businesses:   mgr,
		Limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig, ratelimit.NewMemoryStore()),
		PostgresPing: up,
		Logger:       log,
		Env:          "test",
	})
	return &fixture{handler: h, store: store, ownerID: ownerID, businessID: b.ID}
}

func (f *fixture) do(t *testing.T, method, path string, body any, owner *uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != nil {
		req.Header.Set(api.OwnerHeader, owner.String())
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) path(suffix string) string {
	return "/businesses/" + f.businessID.String() + suffix
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func bookingBody(at string) map[string]any {
	return map[string]any{
		"date":           monday,
		"time":           at,
		"customer_name":  "Grace Hopper",
		"customer_phone": "+15550123",
	}
}

func TestBookingFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, f.path("/slots?date="+monday), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[api.SlotsResponse](t, rec)
	assert.Equal(t, []appointment.ClockTime{appointment.MustClock("09:00"), appointment.MustClock("09:30")}, slots.Slots)
	assert.False(t, slots.Fallback)

	rec = f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", created.Status)
	assert.Equal(t, monday, created.Date)
	assert.True(t, created.CanCancel)

	rec = f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "slot_taken", errResp.Error)
	assert.Equal(t, "This time slot is no longer available. Please select another time.", errResp.Details)

	rec = f.do(t, http.MethodGet, f.path("/slots?date="+monday), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []appointment.ClockTime{appointment.MustClock("09:30")}, decode[api.SlotsResponse](t, rec).Slots)
}

func TestRescheduleOutsideGridIsUnavailable(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/appointments/"+decode[api.AppointmentResponse](t, rec).ID.String()+"/reschedule",
		map[string]any{"date": monday, "time": "11:00"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[api.ErrorResponse](t, rec).Error)
}

func TestCreateAppointmentRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", `{"date":`, "invalid_request_body"},
		{"bad date", map[string]any{"date": "15/01/2024", "time": "09:00", "customer_name": "A", "customer_phone": "1"}, "invalid_date"},
		{"bad time", map[string]any{"date": monday, "time": "9am", "customer_name": "A", "customer_phone": "1"}, "invalid_request_body"},
		{"missing name", map[string]any{"date": monday, "time": "09:00", "customer_name": "  ", "customer_phone": "1"}, "validation_error"},
		{"missing time", map[string]any{"date": monday, "customer_name": "A", "customer_phone": "1"}, "validation_error"},
		{"invalid input before service lookup", map[string]any{"date": monday, "time": "09:00", "customer_name": "", "customer_phone": "1", "service_id": uuid.New()}, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, f.path("/appointments"), tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, rec).Error)
			assert.Empty(t, f.store.Active(f.businessID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
		})
	}
}

func TestBookingUnknownBusiness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/businesses/"+uuid.New().String()+"/appointments", bookingBody("09:00"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "business_not_found", decode[api.ErrorResponse](t, rec).Error)
	assert.Zero(t, f.store.Calls("InsertAppointment"))
}

func TestRescheduleRequiresTime(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.AppointmentResponse](t, rec).ID.String()

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/reschedule", map[string]any{"date": monday}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[api.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/appointments/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.MustClock("09:00"), decode[api.AppointmentResponse](t, rec).Time)
}

func TestBookingIsRateLimited(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < ratelimit.DefaultConfig.MaxAttempts; i++ {
		rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code, "attempt %d", i+1)
	}

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:30"), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))
	body := decode[api.RateLimitResponse](t, rec)
	assert.Equal(t, "rate_limited", body.Error)
	assert.Equal(t, 600, body.RetryAfterSeconds)

	rec = f.do(t, http.MethodGet, f.path("/slots?date="+monday), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "only booking is throttled")
}

func TestSlotsServeFallbackWhenLookupFails(t *testing.T) {
	f := newFixture(t)
	f.store.WindowsErr = appointmenttest.ErrDown

	rec := f.do(t, http.MethodGet, f.path("/slots?date="+monday), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[api.SlotsResponse](t, rec)
	assert.True(t, body.Fallback)
	assert.Len(t, body.Slots, 12)
}

func TestStoreErrorsAreSanitized(t *testing.T) {
	f := newFixture(t)
	f.store.InsertErr = errors.New("database connection lost")

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "internal_error", body.Error)
	assert.Equal(t, "Failed to book appointment. Please try again.", body.Details)
	assert.NotContains(t, rec.Body.String(), "database")
}

func TestOwnerRoutesRequireIdentity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/businesses/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication failed. Please try again.", decode[api.ErrorResponse](t, rec).Details)

	rec = f.do(t, http.MethodGet, "/businesses/me", nil, &f.ownerID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.businessID, decode[business.Business](t, rec).ID)

	stranger := uuid.New()
	rec = f.do(t, http.MethodGet, f.path("/stats"), nil, &stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, f.path("/appointments"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBusinessSetup(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	rec := f.do(t, http.MethodPost, "/businesses", map[string]any{"name": "Bright Smiles Dental"}, &owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[business.Business](t, rec)
	assert.Equal(t, "bright-smiles-dental", b.Slug)

	rec = f.do(t, http.MethodPost, "/businesses", map[string]any{"name": "Second Shop"}, &owner)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/businesses/bright-smiles-dental", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.ID, decode[business.Business](t, rec).ID)

	base := "/businesses/" + b.ID.String()
	rec = f.do(t, http.MethodGet, base+"/hours", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[api.HoursResponse](t, rec).Windows, 5)

	rec = f.do(t, http.MethodPut, base+"/hours", api.HoursRequest{Windows: []api.WindowPayload{
		{DayOfWeek: 6, StartTime: appointment.MustClock("10:00"), EndTime: appointment.MustClock("14:00"), SlotDuration: 60},
	}}, &owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hours := decode[api.HoursResponse](t, rec).Windows
	require.Len(t, hours, 1)
	require.NotNil(t, hours[0].IsAvailable)
	assert.True(t, *hours[0].IsAvailable)

	rec = f.do(t, http.MethodPut, base+"/hours", api.HoursRequest{Windows: []api.WindowPayload{
		{DayOfWeek: 7, StartTime: appointment.MustClock("10:00"), EndTime: appointment.MustClock("14:00"), SlotDuration: 60},
	}}, &owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/services", map[string]any{"name": "Cleaning", "price": 80}, &owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	svc := decode[business.Service](t, rec)
	assert.Equal(t, 30, svc.DurationMinutes)

	rec = f.do(t, http.MethodPatch, base+"/services/"+svc.ID.String(), map[string]any{"is_active": false}, &owner)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, base+"/services", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[api.ServiceListResponse](t, rec).Services)

	rec = f.do(t, http.MethodGet, base+"/services?include_inactive=true", nil, nil)
	assert.Len(t, decode[api.ServiceListResponse](t, rec).Services, 1)

	rec = f.do(t, http.MethodDelete, base+"/services/"+svc.ID.String(), nil, &owner)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAppointmentLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.AppointmentResponse](t, rec).ID.String()

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/reschedule", map[string]any{"date": monday, "time": "09:30"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appointment.MustClock("09:30"), decode[api.AppointmentResponse](t, rec).Time)

	rec = f.do(t, http.MethodGet, "/appointments?phone=%2B15550123", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[api.AppointmentListResponse](t, rec).Appointments, 1)

	rec = f.do(t, http.MethodGet, "/appointments?phone=1&email=a@b.c", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/status", api.StatusRequest{Status: "completed"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/status", api.StatusRequest{Status: "completed"}, &f.ownerID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[api.AppointmentResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/cancel", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[api.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodDelete, "/appointments/"+id, nil, &f.ownerID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, f.path("/appointments"), bookingBody("09:00"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.AppointmentResponse](t, rec).ID.String()

	rec = f.do(t, http.MethodPost, "/appointments/"+id+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[api.AppointmentResponse](t, rec).Status)

	rec = f.do(t, http.MethodGet, f.path("/slots?date="+monday), nil, nil)
	assert.Len(t, decode[api.SlotsResponse](t, rec).Slots, 2)
}

func TestReadiness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[api.ReadinessResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "disabled", body.Dependencies["redis"])
}
