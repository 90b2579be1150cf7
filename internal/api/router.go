package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
	"github.com/hackgods/booking-platform/internal/metrics"
	"github.com/hackgods/booking-platform/internal/ratelimit"
	"github.com/hackgods/booking-platform/internal/secureerr"
)

type RouterConfig struct {
	Allocator    *appointment.SlotAllocator
	Appointments appointment.Reader
	Businesses   *business.Manager

	// Limiter throttles booking attempts. Nil disables the limit.
	Limiter           *ratelimit.Limiter
	RateLimitFailOpen bool

	PostgresPing Pinger
	RedisPing    Pinger

	Logger           *logrus.Logger
	Env              string
	Version          string
	ShowErrorDetails bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	h := NewHandlers(cfg.Allocator, cfg.Appointments, cfg.Businesses, secureerr.Sanitizer{ShowDetails: cfg.ShowErrorDetails})

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PostgresPing, cfg.RedisPing, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	// Owner dashboard
	r.With(RequireOwner).Post("/businesses", h.createBusiness)
	r.With(RequireOwner).Get("/businesses/me", h.myBusiness)

	r.Route("/businesses/{businessID}", func(r chi.Router) {
		r.Get("/", h.getBusiness)
		r.Get("/hours", h.getHours)
		r.Get("/services", h.listServices)
		r.Get("/slots", h.availableSlots)

		booking := r.With()
		if cfg.Limiter != nil {
			booking = r.With(RateLimitMiddleware(cfg.Limiter, cfg.RateLimitFailOpen))
		}
		booking.Post("/appointments", h.createAppointment)

		r.Group(func(r chi.Router) {
			r.Use(RequireOwner)
			r.Patch("/", h.updateBusiness)
			r.Put("/hours", h.replaceHours)
			r.Post("/services", h.createService)
			r.Patch("/services/{serviceID}", h.updateService)
			r.Delete("/services/{serviceID}", h.deleteService)
			r.Get("/stats", h.businessStats)
			r.Get("/appointments", h.listBusinessAppointments)
		})
	})

	// Customer portal and appointment management
	r.Get("/appointments", h.listCustomerAppointments)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Post("/reschedule", h.rescheduleAppointment)
		r.Post("/cancel", h.cancelAppointment)

		r.Group(func(r chi.Router) {
			r.Use(RequireOwner)
			r.Delete("/", h.deleteAppointment)
			r.Post("/status", h.updateStatus)
		})
	})

	return r
}
