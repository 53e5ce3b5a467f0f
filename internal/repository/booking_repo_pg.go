package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	CreateFromHold(ctx context.Context, booking *domain.Booking, sessionID string) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error)
	Cancel(ctx context.Context, id int64, reason string) (*domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, user_id, staff_id, location_id, category_code, start_time, end_time, duration_minutes, status, cancelled_at, COALESCE(cancel_reason, ''), created_at, updated_at`

// CreateFromHold converts the session's primary hold into a durable booking
// in one transaction. The first statement is the guard: it only matches a
// live hold owned by the session, so an expired or foreign hold makes the
// whole conversion fail without touching anything.
func (r *PGBookingRepository) CreateFromHold(ctx context.Context, booking *domain.Booking, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var rangeID int64
	err = tx.QueryRow(ctx, `
		UPDATE staff_timeline
		SET status='BOOKED', held_until=NULL, updated_at=now()
		WHERE staff_id=$1 AND start_time=$2 AND end_time=$3
		  AND status='HELD' AND held_by_session=$4 AND held_until > now()
		RETURNING id`, booking.StaffID, booking.StartTime, booking.EndTime, sessionID).Scan(&rangeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrReservationExpired
		}
		return err
	}

	booking.Status = domain.BookingStatusPendingConfirmation
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (user_id, staff_id, location_id, category_code, start_time, end_time, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		booking.UserID, booking.StaffID, booking.LocationID, booking.CategoryCode,
		booking.StartTime, booking.EndTime, booking.DurationMinutes, booking.Status).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return err
	}

	// Secondary ranges held by the same session become permanently
	// unavailable too, so the staff member cannot surface elsewhere.
	if _, err := tx.Exec(ctx, `
		UPDATE staff_timeline
		SET status='BOOKED', held_until=NULL, updated_at=now()
		WHERE held_by_session=$1 AND status='HELD'`, sessionID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+bookingColumns, status, id)
	return scanBooking(row)
}

// Cancel tombstones the booking. Rows are never deleted.
func (r *PGBookingRepository) Cancel(ctx context.Context, id int64, reason string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status='CANCELLED', cancelled_at=now(), cancel_reason=$1, updated_at=now()
		WHERE id=$2 AND status <> 'CANCELLED'
		RETURNING `+bookingColumns, reason, id)
	return scanBooking(row)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var cancelledAt *time.Time
	err := row.Scan(&b.ID, &b.UserID, &b.StaffID, &b.LocationID, &b.CategoryCode,
		&b.StartTime, &b.EndTime, &b.DurationMinutes, &b.Status,
		&cancelledAt, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	b.CancelledAt = cancelledAt
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
