package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type RateLimitResponse struct {
	ErrorResponse
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

type BusinessRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

func (r BusinessRequest) profile() business.Profile {
	return business.Profile{
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Phone:       r.Phone,
		Email:       r.Email,
		Address:     r.Address,
	}
}

// WindowPayload is one weekly opening range. DayOfWeek is 0 for Sunday.
type WindowPayload struct {
	ID           uuid.UUID             `json:"id,omitempty"`
	DayOfWeek    int                   `json:"day_of_week"`
	StartTime    appointment.ClockTime `json:"start_time"`
	EndTime      appointment.ClockTime `json:"end_time"`
	SlotDuration int                   `json:"slot_duration"`
	IsAvailable  *bool                 `json:"is_available,omitempty"`
}

func windowPayload(w appointment.AvailabilityWindow) WindowPayload {
	available := w.IsAvailable
	return WindowPayload{
		ID:           w.ID,
		DayOfWeek:    w.DayOfWeek,
		StartTime:    w.StartTime,
		EndTime:      w.EndTime,
		SlotDuration: w.SlotDurationMinutes,
		IsAvailable:  &available,
	}
}

func (p WindowPayload) window() appointment.AvailabilityWindow {
	available := true
	if p.IsAvailable != nil {
		available = *p.IsAvailable
	}
	return appointment.AvailabilityWindow{
		DayOfWeek:           p.DayOfWeek,
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		SlotDurationMinutes: p.SlotDuration,
		IsAvailable:         available,
	}
}

type HoursRequest struct {
	Windows []WindowPayload `json:"windows"`
}

type HoursResponse struct {
	Windows []WindowPayload `json:"windows"`
}

type ServiceRequest struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description"`
	DurationMinutes int      `json:"duration_minutes"`
	Price           *float64 `json:"price"`
}

type ServicePatchRequest struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	DurationMinutes *int     `json:"duration_minutes"`
	Price           *float64 `json:"price"`
	IsActive        *bool    `json:"is_active"`
}

type SlotsResponse struct {
	Date     string                  `json:"date"`
	Slots    []appointment.ClockTime `json:"slots"`
	Fallback bool                    `json:"fallback"`
}

type CreateAppointmentRequest struct {
	ServiceID     *uuid.UUID             `json:"service_id"`
	Date          string                 `json:"date"`
	Time          *appointment.ClockTime `json:"time"`
	CustomerName  string                 `json:"customer_name"`
	CustomerPhone string                 `json:"customer_phone"`
	CustomerEmail *string                `json:"customer_email"`
	Notes         *string                `json:"notes"`
}

type RescheduleRequest struct {
	Date string                 `json:"date"`
	Time *appointment.ClockTime `json:"time"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type ServiceSummaryResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           *float64  `json:"price,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID               `json:"id"`
	BusinessID    uuid.UUID               `json:"business_id"`
	ServiceID     *uuid.UUID              `json:"service_id,omitempty"`
	CustomerName  string                  `json:"customer_name"`
	CustomerPhone string                  `json:"customer_phone"`
	CustomerEmail *string                 `json:"customer_email,omitempty"`
	Date          string                  `json:"date"`
	Time          appointment.ClockTime   `json:"time"`
	Status        string                  `json:"status"`
	Notes         *string                 `json:"notes,omitempty"`
	CanCancel     bool                    `json:"can_cancel"`
	Service       *ServiceSummaryResponse `json:"service,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type ServiceListResponse struct {
	Services []business.Service `json:"services"`
}

func appointmentResponse(a appointment.Appointment, canCancel bool) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		BusinessID:    a.BusinessID,
		ServiceID:     a.ServiceID,
		CustomerName:  a.CustomerName,
		CustomerPhone: a.CustomerPhone,
		CustomerEmail: a.CustomerEmail,
		Date:          appointment.FormatDate(a.Date),
		Time:          a.Time,
		Status:        string(a.Status),
		Notes:         a.Notes,
		CanCancel:     canCancel,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func detailResponse(d appointment.AppointmentDetail, canCancel bool) AppointmentResponse {
	resp := appointmentResponse(d.Appointment, canCancel)
	if d.Service != nil {
		resp.Service = &ServiceSummaryResponse{
			ID:              d.Service.ID,
			Name:            d.Service.Name,
			Description:     d.Service.Description,
			DurationMinutes: d.Service.DurationMinutes,
			Price:           d.Service.Price,
		}
	}
	return resp
}
