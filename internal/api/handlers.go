package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
	"github.com/hackgods/booking-platform/internal/logging"
	"github.com/hackgods/booking-platform/internal/secureerr"
)

var (
	errInvalidSession = errors.New("invalid session")
	errForbidden      = errors.New("business belongs to another owner")
)

const (
	fallbackGeneric = "Something went wrong. Please try again."
	fallbackBooking = "Failed to book appointment. Please try again."
)

type Handlers struct {
	alloc     *appointment.SlotAllocator
	reader    appointment.Reader
	biz       *business.Manager
	sanitizer secureerr.Sanitizer
}

func NewHandlers(alloc *appointment.SlotAllocator, reader appointment.Reader, biz *business.Manager, sanitizer secureerr.Sanitizer) *Handlers {
	return &Handlers{alloc: alloc, reader: reader, biz: biz, sanitizer: sanitizer}
}

func (h *Handlers) availableSlots(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	date, err := appointment.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	res, err := h.alloc.AvailableSlots(r.Context(), businessID, date)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		Date:     appointment.FormatDate(res.Date),
		Slots:    res.Slots,
		Fallback: res.Fallback,
	})
}

func (h *Handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	if req.Time == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid time: is required")
		return
	}

	booking := appointment.BookingRequest{
		BusinessID:    businessID,
		ServiceID:     req.ServiceID,
		Date:          date,
		Time:          *req.Time,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Notes:         req.Notes,
	}
	if err := booking.Validate(); err != nil {
		h.writeServiceError(w, r, err, fallbackBooking)
		return
	}
	if _, err := h.biz.Get(r.Context(), businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackBooking)
		return
	}

	if req.ServiceID != nil {
		svc, err := h.biz.ServiceOf(r.Context(), businessID, *req.ServiceID)
		if err != nil {
			h.writeServiceError(w, r, err, fallbackBooking)
			return
		}
		if !svc.IsActive {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid service_id: service is not offered")
			return
		}
	}

	appt, err := h.alloc.CommitBooking(r.Context(), booking)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackBooking)
		return
	}

	writeJSON(w, http.StatusCreated, appointmentResponse(*appt, h.alloc.CanCustomerCancel(*appt)))
}

func (h *Handlers) listBusinessAppointments(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := appointment.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = &d
	}

	list, err := h.reader.ListBusinessAppointments(r.Context(), businessID, date)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, h.listResponse(list))
}

// listCustomerAppointments is the customer portal lookup by exactly one
// of phone or email.
func (h *Handlers) listCustomerAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lookup := appointment.CustomerLookup{
		Phone: strings.TrimSpace(q.Get("phone")),
		Email: strings.TrimSpace(q.Get("email")),
	}
	if (lookup.Phone == "") == (lookup.Email == "") {
		writeError(w, http.StatusBadRequest, "invalid_lookup", "provide exactly one of phone or email")
		return
	}

	list, err := h.reader.ListCustomerAppointments(r.Context(), lookup)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, h.listResponse(list))
}

func (h *Handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.reader.GetAppointmentDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse(*d, h.alloc.CanCustomerCancel(d.Appointment)))
}

func (h *Handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.reader.GetAppointmentDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	if err := h.authorize(r, d.BusinessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	if err := h.reader.DeleteAppointment(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	if req.Time == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid time: is required")
		return
	}

	d, err := h.reader.GetAppointmentDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	appt, err := h.alloc.RescheduleAppointment(r.Context(), appointment.RescheduleRequest{
		AppointmentID: id,
		BusinessID:    d.BusinessID,
		Date:          date,
		Time:          *req.Time,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to reschedule appointment. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(*appt, h.alloc.CanCustomerCancel(*appt)))
}

func (h *Handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.reader.GetAppointmentDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	if err := h.authorize(r, d.BusinessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	appt, err := h.alloc.UpdateStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(*appt, false))
}

func (h *Handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.alloc.CancelAppointment(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to cancel appointment. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(*appt, false))
}

func (h *Handlers) listResponse(list []appointment.AppointmentDetail) AppointmentListResponse {
	resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(list))}
	for _, d := range list {
		resp.Appointments = append(resp.Appointments, detailResponse(d, h.alloc.CanCustomerCancel(d.Appointment)))
	}
	return resp
}

// authorize checks that the request's owner owns businessID.
func (h *Handlers) authorize(r *http.Request, businessID uuid.UUID) error {
	ownerID, ok := ownerFromContext(r.Context())
	if !ok {
		return errInvalidSession
	}
	b, err := h.biz.Get(r.Context(), businessID)
	if err != nil {
		return err
	}
	if b.OwnerID != ownerID {
		return errForbidden
	}
	return nil
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		validationErr *appointment.ValidationError
		inputErr      *business.InvalidInputError
		conflictErr   *appointment.ConflictError
		policyErr     *appointment.PolicyError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, "validation_error", inputErr.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, strings.ToLower(string(conflictErr.Reason)), conflictErr.UserMessage())
	case errors.As(err, &policyErr):
		writeError(w, http.StatusForbidden, "cancellation_window", policyErr.Reason)
	case errors.Is(err, errInvalidSession):
		writeAuthError(w, err)
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "You do not have access to this business.")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found.")
	case errors.Is(err, business.ErrBusinessNotFound), errors.Is(err, appointment.ErrUnknownBusiness):
		writeError(w, http.StatusNotFound, "business_not_found", "Business not found.")
	case errors.Is(err, business.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", "Service not found.")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, business.ErrSlugTaken):
		writeError(w, http.StatusConflict, "slug_taken", "This booking link is already taken.")
	case errors.Is(err, business.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, "business_exists", "You already have a business.")
	case errors.Is(err, appointment.ErrStoreTimeout):
		logging.FromContext(r.Context()).WithError(err).Error("store timeout")
		writeError(w, http.StatusGatewayTimeout, "timeout", h.sanitizer.Message(err, fallback))
	default:
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", h.sanitizer.Message(err, fallback))
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusUnauthorized, "unauthorized", secureerr.SanitizeAuth(err))
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
