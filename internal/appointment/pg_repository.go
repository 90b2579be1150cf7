package appointment

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
)

// pgUniqueViolation is the SQLSTATE raised by the partial unique index
// uq_appointments_active_slot.
const pgUniqueViolation = "23505"

const (
	pgForeignKeyViolation = "23503"
	businessForeignKey    = "appointments_business_id_fkey"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const appointmentColumns = `a.id, a.business_id, a.service_id, a.customer_name, a.customer_phone, a.customer_email,
	a.appointment_date, a.appointment_time, a.status, a.notes, a.created_at, a.updated_at`

// Helpers

func toPgTime(c ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) ClockTime {
	return ClockTime(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isUnknownBusiness(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == businessForeignKey
}

func scanAppointmentInto(row pgx.Row, a *Appointment, extra ...any) error {
	var at pgtype.Time
	dest := []any{
		&a.ID,
		&a.BusinessID,
		&a.ServiceID,
		&a.CustomerName,
		&a.CustomerPhone,
		&a.CustomerEmail,
		&a.Date,
		&at,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	a.Time = fromPgTime(at)
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := scanAppointmentInto(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var (
		svcID       *uuid.UUID
		svcName     *string
		svcDesc     *string
		svcDuration *int
		svcPrice    *float64
	)
	if err := scanAppointmentInto(row, &d.Appointment, &svcID, &svcName, &svcDesc, &svcDuration, &svcPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if svcID != nil {
		d.Service = &ServiceSummary{ID: *svcID, Description: svcDesc, Price: svcPrice}
		if svcName != nil {
			d.Service.Name = *svcName
		}
		if svcDuration != nil {
			d.Service.DurationMinutes = *svcDuration
		}
	}
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Store methods

func (r *PgRepository) FetchAvailabilityWindows(ctx context.Context, businessID uuid.UUID, dayOfWeek int) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, day_of_week, start_time, end_time, slot_duration, is_available
		FROM time_slots
		WHERE business_id = $1
		  AND day_of_week = $2
		  AND is_available
		ORDER BY start_time
	`, businessID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		var w AvailabilityWindow
		var start, end pgtype.Time
		if err := rows.Scan(&w.ID, &w.BusinessID, &w.DayOfWeek, &start, &end, &w.SlotDurationMinutes, &w.IsAvailable); err != nil {
			return nil, err
		}
		w.StartTime = fromPgTime(start)
		w.EndTime = fromPgTime(end)
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FetchBookedTimes(ctx context.Context, businessID uuid.UUID, date time.Time) ([]BookedTime, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.appointment_time, COALESCE(s.duration_minutes, 0)
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.business_id = $1
		  AND a.appointment_date = $2
		  AND a.status <> 'cancelled'
	`, businessID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BookedTime
	for rows.Next() {
		var at pgtype.Time
		var b BookedTime
		if err := rows.Scan(&at, &b.DurationMinutes); err != nil {
			return nil, err
		}
		b.Time = fromPgTime(at)
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindActiveAppointment(ctx context.Context, businessID uuid.UUID, date time.Time, at ClockTime) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.business_id = $1
		  AND a.appointment_date = $2
		  AND a.appointment_time = $3
		  AND a.status <> 'cancelled'
		LIMIT 1
	`, businessID, date, toPgTime(at))
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, rec NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, business_id, service_id, customer_name, customer_phone, customer_email,
			appointment_date, appointment_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, rec.BusinessID, rec.ServiceID, rec.CustomerName, rec.CustomerPhone, rec.CustomerEmail,
		rec.Date, toPgTime(rec.Time), rec.Status, rec.Notes)

	appt, err := scanAppointment(row)
	switch {
	case err != nil && isUniqueViolation(err):
		return nil, ErrUniqueViolation
	case err != nil && isUnknownBusiness(err):
		return nil, ErrUnknownBusiness
	}
	return appt, err
}

func (r *PgRepository) UpdateAppointmentFields(ctx context.Context, id uuid.UUID, fields AppointmentUpdate) (*Appointment, error) {
	var date *time.Time
	var at *pgtype.Time
	if fields.Date != nil {
		date = fields.Date
	}
	if fields.Time != nil {
		t := toPgTime(*fields.Time)
		at = &t
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET appointment_date = COALESCE($2, a.appointment_date),
		    appointment_time = COALESCE($3, a.appointment_time),
		    status = COALESCE($4, a.status),
		    updated_at = now()
		WHERE a.id = $1
		  AND ($5::text IS NULL OR a.status = $5)
		RETURNING `+appointmentColumns+`
	`, id, date, at, fields.Status, fields.FromStatus)

	appt, err := scanAppointment(row)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrUniqueViolation
	}
	return appt, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Reader methods

const detailQuery = `
	SELECT ` + appointmentColumns + `,
		s.id, s.name, s.description, s.duration_minutes, s.price::float8
	FROM appointments a
	LEFT JOIN services s ON s.id = a.service_id
`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailQuery+`WHERE a.id = $1`, id)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListBusinessAppointments(ctx context.Context, businessID uuid.UUID, date *time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE a.business_id = $1
		  AND ($2::date IS NULL OR a.appointment_date = $2)
		ORDER BY a.appointment_date ASC, a.appointment_time ASC
	`, businessID, date)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListCustomerAppointments(ctx context.Context, lookup CustomerLookup) ([]AppointmentDetail, error) {
	column, value := "a.customer_phone", lookup.Phone
	if lookup.Phone == "" {
		column, value = "a.customer_email", lookup.Email
	}

	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE `+column+` = $1
		ORDER BY a.appointment_date DESC, a.appointment_time DESC
	`, value)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) CountAppointments(ctx context.Context, businessID uuid.UUID, window StatsWindow) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE appointment_date = $2),
			count(*) FILTER (WHERE appointment_date >= $3),
			count(*) FILTER (WHERE created_at >= $4),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'cancelled')
		FROM appointments
		WHERE business_id = $1
	`, businessID, window.Today, window.WeekStart, window.MonthStart).Scan(
		&s.Today,
		&s.ThisWeek,
		&s.ThisMonth,
		&s.Completed,
		&s.Cancelled,
	)
	return s, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
