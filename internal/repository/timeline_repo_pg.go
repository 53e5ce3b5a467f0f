package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineRepository guards the one-staff-one-timeline invariant. Every
// hold is a single conditional write: two sessions racing for the same
// range resolve inside the database, never in application code.
type TimelineRepository interface {
	HoldRange(ctx context.Context, staffID int64, start, end time.Time, sessionID string, heldUntil time.Time) (*domain.TimelineRange, error)
	ListOverlapping(ctx context.Context, staffID int64, start, end time.Time) ([]domain.TimelineRange, error)
	GetRange(ctx context.Context, staffID int64, start, end time.Time) (*domain.TimelineRange, error)
	ReleaseBySession(ctx context.Context, sessionID string) ([]domain.TimelineRange, error)
	ReopenBookedRange(ctx context.Context, staffID int64, start, end time.Time) error
	ExpireHeldBefore(ctx context.Context, deadline time.Time) ([]domain.TimelineRange, error)
}

type PGTimelineRepository struct {
	db *pgxpool.Pool
}

func NewTimelineRepository(db *pgxpool.Pool) TimelineRepository {
	return &PGTimelineRepository{db: db}
}

const rangeColumns = `id, staff_id, start_time, end_time, status, COALESCE(held_by_session, ''), COALESCE(held_until, 'epoch'::timestamptz), created_at, updated_at`

// HoldRange takes the range for a session iff it is open or its existing
// hold has expired. The guard lives in the upsert's WHERE clause so the
// check and the write are one atomic round trip.
func (r *PGTimelineRepository) HoldRange(ctx context.Context, staffID int64, start, end time.Time, sessionID string, heldUntil time.Time) (*domain.TimelineRange, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO staff_timeline (staff_id, start_time, end_time, status, held_by_session, held_until)
		VALUES ($1, $2, $3, 'HELD', $4, $5)
		ON CONFLICT (staff_id, start_time, end_time) DO UPDATE
		SET status='HELD', held_by_session=$4, held_until=$5, updated_at=now()
		WHERE staff_timeline.status='OPEN'
		   OR (staff_timeline.status='HELD' AND staff_timeline.held_until <= now())
		RETURNING `+rangeColumns, staffID, start, end, sessionID, heldUntil)

	tr, err := scanRange(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSlotConflict
		}
		return nil, err
	}
	return tr, nil
}

func (r *PGTimelineRepository) ListOverlapping(ctx context.Context, staffID int64, start, end time.Time) ([]domain.TimelineRange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+rangeColumns+` FROM staff_timeline
		WHERE staff_id=$1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, staffID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []domain.TimelineRange
	for rows.Next() {
		tr, err := scanRange(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, *tr)
	}
	return ranges, rows.Err()
}

func (r *PGTimelineRepository) GetRange(ctx context.Context, staffID int64, start, end time.Time) (*domain.TimelineRange, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+rangeColumns+` FROM staff_timeline
		WHERE staff_id=$1 AND start_time=$2 AND end_time=$3`, staffID, start, end)
	tr, err := scanRange(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return tr, nil
}

// ReleaseBySession reopens every range still held by the session and
// returns the freed ranges so callers can drop their fast-path locks.
// Booked ranges are untouched.
func (r *PGTimelineRepository) ReleaseBySession(ctx context.Context, sessionID string) ([]domain.TimelineRange, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE staff_timeline
		SET status='OPEN', held_by_session=NULL, held_until=NULL, updated_at=now()
		WHERE held_by_session=$1 AND status='HELD'
		RETURNING `+rangeColumns, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var freed []domain.TimelineRange
	for rows.Next() {
		tr, err := scanRange(rows)
		if err != nil {
			return nil, err
		}
		freed = append(freed, *tr)
	}
	return freed, rows.Err()
}

// ReopenBookedRange frees a booked range after its booking is cancelled.
func (r *PGTimelineRepository) ReopenBookedRange(ctx context.Context, staffID int64, start, end time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE staff_timeline
		SET status='OPEN', held_by_session=NULL, held_until=NULL, updated_at=now()
		WHERE staff_id=$1 AND start_time=$2 AND end_time=$3 AND status='BOOKED'`, staffID, start, end)
	return err
}

// ExpireHeldBefore sweeps lapsed holds back to OPEN. Correctness does not
// depend on this: holds expire lazily on the next conditional write. The
// sweep only keeps the table tidy for availability queries.
func (r *PGTimelineRepository) ExpireHeldBefore(ctx context.Context, deadline time.Time) ([]domain.TimelineRange, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE staff_timeline
		SET status='OPEN', held_by_session=NULL, held_until=NULL, updated_at=now()
		WHERE status='HELD' AND held_until <= $1
		RETURNING `+rangeColumns, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.TimelineRange
	for rows.Next() {
		tr, err := scanRange(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *tr)
	}
	return expired, rows.Err()
}

func scanRange(row pgx.Row) (*domain.TimelineRange, error) {
	var tr domain.TimelineRange
	if err := row.Scan(&tr.ID, &tr.StaffID, &tr.StartTime, &tr.EndTime, &tr.Status, &tr.HeldBySession, &tr.HeldUntil, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return nil, err
	}
	return &tr, nil
}

var _ TimelineRepository = (*PGTimelineRepository)(nil)
