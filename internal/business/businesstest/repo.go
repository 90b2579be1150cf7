// Package businesstest provides an in-memory business.Repository.
package businesstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
)

type Repo struct {
	mu         sync.Mutex
	businesses map[uuid.UUID]*business.Business
	windows    map[uuid.UUID][]appointment.AvailabilityWindow
	services   map[uuid.UUID]*business.Service
	seq        time.Duration

	// WindowsErr fails ReplaceWindows.
	WindowsErr error
}

var _ business.Repository = (*Repo)(nil)

func New() *Repo {
	return &Repo{
		businesses: map[uuid.UUID]*business.Business{},
		windows:    map[uuid.UUID][]appointment.AvailabilityWindow{},
		services:   map[uuid.UUID]*business.Service{},
	}
}

// tick returns strictly increasing timestamps so ordering by creation is stable.
func (r *Repo) tick() time.Time {
	r.seq++
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(r.seq * time.Second)
}

func (r *Repo) CreateBusiness(_ context.Context, b business.Business) (*business.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.businesses {
		if existing.OwnerID == b.OwnerID {
			return nil, business.ErrAlreadyOwned
		}
		if existing.Slug == b.Slug {
			return nil, business.ErrSlugTaken
		}
	}
	b.CreatedAt = r.tick()
	b.UpdatedAt = b.CreatedAt
	r.businesses[b.ID] = &b
	cp := b
	return &cp, nil
}

func (r *Repo) find(match func(*business.Business) bool) (*business.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.businesses {
		if match(b) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, business.ErrBusinessNotFound
}

func (r *Repo) GetBusiness(_ context.Context, id uuid.UUID) (*business.Business, error) {
	return r.find(func(b *business.Business) bool { return b.ID == id })
}

func (r *Repo) GetBusinessBySlug(_ context.Context, slug string) (*business.Business, error) {
	return r.find(func(b *business.Business) bool { return b.Slug == slug })
}

func (r *Repo) GetBusinessByOwner(_ context.Context, ownerID uuid.UUID) (*business.Business, error) {
	return r.find(func(b *business.Business) bool { return b.OwnerID == ownerID })
}

func (r *Repo) UpdateBusiness(_ context.Context, id uuid.UUID, p business.Profile) (*business.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, business.ErrBusinessNotFound
	}
	for _, other := range r.businesses {
		if other.ID != id && other.Slug == p.Slug {
			return nil, business.ErrSlugTaken
		}
	}
	b.Name, b.Slug, b.Description, b.Phone, b.Email, b.Address = p.Name, p.Slug, p.Description, p.Phone, p.Email, p.Address
	b.UpdatedAt = r.tick()
	cp := *b
	return &cp, nil
}

func (r *Repo) ListWindows(_ context.Context, businessID uuid.UUID) ([]appointment.AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]appointment.AvailabilityWindow{}, r.windows[businessID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *Repo) ReplaceWindows(_ context.Context, businessID uuid.UUID, windows []appointment.AvailabilityWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.WindowsErr != nil {
		return r.WindowsErr
	}
	next := make([]appointment.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		w.ID = uuid.New()
		w.BusinessID = businessID
		next = append(next, w)
	}
	r.windows[businessID] = next
	return nil
}

func (r *Repo) ListServices(_ context.Context, businessID uuid.UUID, activeOnly bool) ([]business.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []business.Service{}
	for _, s := range r.services {
		if s.BusinessID == businessID && (!activeOnly || s.IsActive) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repo) GetService(_ context.Context, id uuid.UUID) (*business.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, business.ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *Repo) CreateService(_ context.Context, s business.Service) (*business.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = r.tick()
	s.UpdatedAt = s.CreatedAt
	r.services[s.ID] = &s
	cp := s
	return &cp, nil
}

func (r *Repo) UpdateService(_ context.Context, id uuid.UUID, p business.ServicePatch) (*business.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, business.ErrServiceNotFound
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = p.Description
	}
	if p.DurationMinutes != nil {
		s.DurationMinutes = *p.DurationMinutes
	}
	if p.Price != nil {
		s.Price = p.Price
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	s.UpdatedAt = r.tick()
	cp := *s
	return &cp, nil
}

func (r *Repo) DeleteService(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; !ok {
		return business.ErrServiceNotFound
	}
	delete(r.services, id)
	return nil
}
