package business

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/booking-platform/internal/appointment"
)

// StatsReader provides the dashboard counters.
type StatsReader interface {
	CountAppointments(ctx context.Context, businessID uuid.UUID, window appointment.StatsWindow) (appointment.Stats, error)
}

// Manager handles tenant setup: the business profile, its weekly hours and
// its service catalogue.
type Manager struct {
	repo  Repository
	stats StatsReader
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewManager(repo Repository, stats StatsReader, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{repo: repo, stats: stats, log: log, now: time.Now}
}

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	slugReplacer = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify derives a URL slug from a business name.
func Slugify(name string) string {
	s := strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(name))
	s = slugReplacer.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func (p Profile) normalize() (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, &InvalidInputError{Field: "name", Reason: "is required"}
	}
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if !slugPattern.MatchString(p.Slug) {
		return p, &InvalidInputError{Field: "slug", Reason: "must be lowercase letters, digits and dashes"}
	}
	if p.Email != nil && *p.Email != "" && !strings.Contains(*p.Email, "@") {
		return p, &InvalidInputError{Field: "email", Reason: "is not an email address"}
	}
	return p, nil
}

// Initialize registers the owner's business and gives it the default
// weekly hours. Failing to write the hours leaves the business in place.
func (m *Manager) Initialize(ctx context.Context, ownerID uuid.UUID, p Profile) (*Business, error) {
	if ownerID == uuid.Nil {
		return nil, &InvalidInputError{Field: "owner_id", Reason: "is required"}
	}
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}

	b, err := m.repo.CreateBusiness(ctx, Business{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Phone:       p.Phone,
		Email:       p.Email,
		Address:     p.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}

	if err := m.repo.ReplaceWindows(ctx, b.ID, appointment.DefaultWindows()); err != nil {
		m.log.WithError(err).WithField("business_id", b.ID).Error("failed to create default hours")
	}

	m.log.WithFields(logrus.Fields{"business_id": b.ID, "slug": b.Slug}).Info("business initialized")
	return b, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Business, error) {
	return m.repo.GetBusiness(ctx, id)
}

// Lookup accepts either a business id or its public slug.
func (m *Manager) Lookup(ctx context.Context, ref string) (*Business, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return m.repo.GetBusiness(ctx, id)
	}
	return m.repo.GetBusinessBySlug(ctx, strings.ToLower(ref))
}

func (m *Manager) ForOwner(ctx context.Context, ownerID uuid.UUID) (*Business, error) {
	return m.repo.GetBusinessByOwner(ctx, ownerID)
}

func (m *Manager) UpdateProfile(ctx context.Context, id uuid.UUID, p Profile) (*Business, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	return m.repo.UpdateBusiness(ctx, id, p)
}

func (m *Manager) Hours(ctx context.Context, businessID uuid.UUID) ([]appointment.AvailabilityWindow, error) {
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return m.repo.ListWindows(ctx, businessID)
}

// ReplaceHours validates every window and then swaps the whole weekly
// schedule in one transaction.
func (m *Manager) ReplaceHours(ctx context.Context, businessID uuid.UUID, windows []appointment.AvailabilityWindow) error {
	for i, w := range windows {
		if err := validateWindow(w); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return err
	}
	if err := m.repo.ReplaceWindows(ctx, businessID, windows); err != nil {
		return fmt.Errorf("replace hours: %w", err)
	}
	return nil
}

func validateWindow(w appointment.AvailabilityWindow) error {
	switch {
	case w.DayOfWeek < 0 || w.DayOfWeek > 6:
		return &InvalidInputError{Field: "day_of_week", Reason: "must be between 0 (Sunday) and 6"}
	case w.StartTime < 0 || w.EndTime > appointment.MustClock("24:00"):
		return &InvalidInputError{Field: "end_time", Reason: "must be within the day"}
	case w.StartTime >= w.EndTime:
		return &InvalidInputError{Field: "start_time", Reason: "must be before end_time"}
	case w.SlotDurationMinutes <= 0:
		return &InvalidInputError{Field: "slot_duration", Reason: "must be positive"}
	}
	return nil
}

func (m *Manager) Services(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error) {
	return m.repo.ListServices(ctx, businessID, activeOnly)
}

// ServiceOf loads a service and checks it belongs to businessID.
func (m *Manager) ServiceOf(ctx context.Context, businessID, serviceID uuid.UUID) (*Service, error) {
	s, err := m.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if s.BusinessID != businessID {
		return nil, ErrServiceNotFound
	}
	return s, nil
}

func (m *Manager) CreateService(ctx context.Context, businessID uuid.UUID, s Service) (*Service, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return nil, &InvalidInputError{Field: "name", Reason: "is required"}
	}
	if s.DurationMinutes == 0 {
		s.DurationMinutes = 30
	}
	if err := validateService(s.DurationMinutes, s.Price); err != nil {
		return nil, err
	}
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}

	s.ID = uuid.New()
	s.BusinessID = businessID
	s.IsActive = true
	return m.repo.CreateService(ctx, s)
}

func (m *Manager) UpdateService(ctx context.Context, businessID, serviceID uuid.UUID, p ServicePatch) (*Service, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, &InvalidInputError{Field: "name", Reason: "must not be empty"}
		}
		p.Name = &name
	}
	duration := 1
	if p.DurationMinutes != nil {
		duration = *p.DurationMinutes
	}
	if err := validateService(duration, p.Price); err != nil {
		return nil, err
	}
	if _, err := m.ServiceOf(ctx, businessID, serviceID); err != nil {
		return nil, err
	}
	return m.repo.UpdateService(ctx, serviceID, p)
}

func (m *Manager) ToggleService(ctx context.Context, businessID, serviceID uuid.UUID, active bool) (*Service, error) {
	return m.UpdateService(ctx, businessID, serviceID, ServicePatch{IsActive: &active})
}

func (m *Manager) DeleteService(ctx context.Context, businessID, serviceID uuid.UUID) error {
	if _, err := m.ServiceOf(ctx, businessID, serviceID); err != nil {
		return err
	}
	return m.repo.DeleteService(ctx, serviceID)
}

func validateService(duration int, price *float64) error {
	if duration <= 0 {
		return &InvalidInputError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if price != nil && *price < 0 {
		return &InvalidInputError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// Stats returns the dashboard counters relative to the current time.
func (m *Manager) Stats(ctx context.Context, businessID uuid.UUID) (appointment.Stats, error) {
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		return appointment.Stats{}, err
	}
	st, err := m.stats.CountAppointments(ctx, businessID, appointment.NewStatsWindow(m.now()))
	if err != nil {
		return appointment.Stats{}, fmt.Errorf("count appointments: %w", err)
	}
	return st, nil
}

// IsNotFound reports whether err means the business or service is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBusinessNotFound) || errors.Is(err, ErrServiceNotFound)
}
