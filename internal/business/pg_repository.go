package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-platform/internal/appointment"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const businessColumns = `id, owner_id, name, slug, description, phone, email, address, created_at, updated_at`

const serviceColumns = `id, business_id, name, description, duration_minutes, price::float8, is_active, created_at, updated_at`

func scanBusiness(row pgx.Row) (*Business, error) {
	var b Business
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Slug, &b.Description, &b.Phone, &b.Email, &b.Address, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Description, &s.DurationMinutes, &s.Price, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

// mapBusinessConflict turns unique violations on businesses into sentinels.
func mapBusinessConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	if pgErr.ConstraintName == "businesses_owner_id_key" {
		return ErrAlreadyOwned
	}
	return ErrSlugTaken
}

func pgClock(c appointment.ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func (r *PgRepository) CreateBusiness(ctx context.Context, b Business) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO businesses (id, owner_id, name, slug, description, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+businessColumns, b.ID, b.OwnerID, b.Name, b.Slug, b.Description, b.Phone, b.Email, b.Address)

	created, err := scanBusiness(row)
	if err != nil {
		return nil, mapBusinessConflict(err)
	}
	return created, nil
}

func (r *PgRepository) GetBusiness(ctx context.Context, id uuid.UUID) (*Business, error) {
	return scanBusiness(r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
}

func (r *PgRepository) GetBusinessBySlug(ctx context.Context, slug string) (*Business, error) {
	return scanBusiness(r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
}

func (r *PgRepository) GetBusinessByOwner(ctx context.Context, ownerID uuid.UUID) (*Business, error) {
	return scanBusiness(r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE owner_id = $1`, ownerID))
}

func (r *PgRepository) UpdateBusiness(ctx context.Context, id uuid.UUID, p Profile) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE businesses
		SET name = $2, slug = $3, description = $4, phone = $5, email = $6, address = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+businessColumns, id, p.Name, p.Slug, p.Description, p.Phone, p.Email, p.Address)

	updated, err := scanBusiness(row)
	if err != nil {
		return nil, mapBusinessConflict(err)
	}
	return updated, nil
}

func (r *PgRepository) ListWindows(ctx context.Context, businessID uuid.UUID) ([]appointment.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, day_of_week, start_time, end_time, slot_duration, is_available
		FROM time_slots
		WHERE business_id = $1
		ORDER BY day_of_week, start_time
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []appointment.AvailabilityWindow{}
	for rows.Next() {
		var w appointment.AvailabilityWindow
		var start, end pgtype.Time
		if err := rows.Scan(&w.ID, &w.BusinessID, &w.DayOfWeek, &start, &end, &w.SlotDurationMinutes, &w.IsAvailable); err != nil {
			return nil, err
		}
		w.StartTime = appointment.ClockTime(start.Microseconds / int64(time.Minute/time.Microsecond))
		w.EndTime = appointment.ClockTime(end.Microseconds / int64(time.Minute/time.Microsecond))
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *PgRepository) ReplaceWindows(ctx context.Context, businessID uuid.UUID, windows []appointment.AvailabilityWindow) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM time_slots WHERE business_id = $1`, businessID); err != nil {
			return fmt.Errorf("clear hours: %w", err)
		}

		batch := &pgx.Batch{}
		for _, w := range windows {
			batch.Queue(`
				INSERT INTO time_slots (id, business_id, day_of_week, start_time, end_time, slot_duration, is_available)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), businessID, w.DayOfWeek, pgClock(w.StartTime), pgClock(w.EndTime), w.SlotDurationMinutes, w.IsAvailable)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert hours: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) ListServices(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE business_id = $1
		  AND (NOT $2 OR is_active)
		ORDER BY created_at ASC
	`, businessID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	return scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

func (r *PgRepository) CreateService(ctx context.Context, s Service) (*Service, error) {
	return scanService(r.pool.QueryRow(ctx, `
		INSERT INTO services (id, business_id, name, description, duration_minutes, price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+serviceColumns,
		s.ID, s.BusinessID, s.Name, s.Description, s.DurationMinutes, s.Price, s.IsActive))
}

func (r *PgRepository) UpdateService(ctx context.Context, id uuid.UUID, p ServicePatch) (*Service, error) {
	return scanService(r.pool.QueryRow(ctx, `
		UPDATE services
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    duration_minutes = COALESCE($4, duration_minutes),
		    price = COALESCE($5, price),
		    is_active = COALESCE($6, is_active),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns,
		id, p.Name, p.Description, p.DurationMinutes, p.Price, p.IsActive))
}

func (r *PgRepository) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}
