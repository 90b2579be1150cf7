package business

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
)

type Repository interface {
	CreateBusiness(ctx context.Context, b Business) (*Business, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (*Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*Business, error)
	GetBusinessByOwner(ctx context.Context, ownerID uuid.UUID) (*Business, error)
	UpdateBusiness(ctx context.Context, id uuid.UUID, p Profile) (*Business, error)

	// Weekly hours. ReplaceWindows swaps the whole set atomically.
	ListWindows(ctx context.Context, businessID uuid.UUID) ([]appointment.AvailabilityWindow, error)
	ReplaceWindows(ctx context.Context, businessID uuid.UUID, windows []appointment.AvailabilityWindow) error

	ListServices(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	CreateService(ctx context.Context, s Service) (*Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, p ServicePatch) (*Service, error)
	DeleteService(ctx context.Context, id uuid.UUID) error
}
