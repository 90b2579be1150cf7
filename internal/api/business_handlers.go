package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
)

func (h *Handlers) createBusiness(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r.Context())
	if !ok {
		writeAuthError(w, errInvalidSession)
		return
	}
	var req BusinessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.biz.Initialize(r.Context(), ownerID, req.profile())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create business. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handlers) myBusiness(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r.Context())
	if !ok {
		writeAuthError(w, errInvalidSession)
		return
	}
	b, err := h.biz.ForOwner(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// getBusiness serves the public booking page header; the path segment may
// be the business id or its slug.
func (h *Handlers) getBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.biz.Lookup(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) updateBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	var req BusinessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	b, err := h.biz.UpdateProfile(r.Context(), businessID, req.profile())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update business. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) getHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	windows, err := h.biz.Hours(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	resp := HoursResponse{Windows: make([]WindowPayload, 0, len(windows))}
	for _, win := range windows {
		resp.Windows = append(resp.Windows, windowPayload(win))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) replaceHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	var req HoursRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	windows := make([]appointment.AvailabilityWindow, 0, len(req.Windows))
	for _, p := range req.Windows {
		windows = append(windows, p.window())
	}
	if err := h.biz.ReplaceHours(r.Context(), businessID, windows); err != nil {
		h.writeServiceError(w, r, err, "Failed to save hours. Please try again.")
		return
	}
	h.getHours(w, r)
}

func (h *Handlers) listServices(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("include_inactive") != "true"

	services, err := h.biz.Services(r.Context(), businessID, activeOnly)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	if services == nil {
		services = []business.Service{}
	}
	writeJSON(w, http.StatusOK, ServiceListResponse{Services: services})
}

func (h *Handlers) createService(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	var req ServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	svc, err := h.biz.CreateService(r.Context(), businessID, business.Service{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create service. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (h *Handlers) updateService(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	serviceID, ok := uuidParam(w, r, "serviceID")
	if !ok {
		return
	}
	var req ServicePatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}

	svc, err := h.biz.UpdateService(r.Context(), businessID, serviceID, business.ServicePatch{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		IsActive:        req.IsActive,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update service. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (h *Handlers) deleteService(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	serviceID, ok := uuidParam(w, r, "serviceID")
	if !ok {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	if err := h.biz.DeleteService(r.Context(), businessID, serviceID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) businessStats(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(w, r, "businessID")
	if !ok {
		return
	}
	if err := h.authorize(r, businessID); err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	st, err := h.biz.Stats(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, r, err, fallbackGeneric)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
