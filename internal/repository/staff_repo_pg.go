package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StaffRepository reads staff reference data. Staff members are managed by
// an external admin surface and are read-only here.
type StaffRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.StaffMember, error)
	List(ctx context.Context) ([]domain.StaffMember, error)
	ListBusyIntervals(ctx context.Context, staffID int64, date time.Time) ([]domain.BusyInterval, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

type PGStaffRepository struct {
	db *pgxpool.Pool
}

func NewStaffRepository(db *pgxpool.Pool) StaffRepository {
	return &PGStaffRepository{db: db}
}

func (r *PGStaffRepository) GetByID(ctx context.Context, id int64) (*domain.StaffMember, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, active, categories, locations, created_at, updated_at FROM staff_members WHERE id=$1`, id)
	var s domain.StaffMember
	if err := row.Scan(&s.ID, &s.Name, &s.Active, &s.Categories, &s.Locations, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT day_of_week, start_min, end_min FROM staff_working_hours WHERE staff_id=$1 ORDER BY day_of_week`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.WorkingHours
		var day int
		if err := rows.Scan(&day, &h.StartMin, &h.EndMin); err != nil {
			return nil, err
		}
		h.DayOfWeek = time.Weekday(day)
		s.Hours = append(s.Hours, h)
	}
	return &s, rows.Err()
}

func (r *PGStaffRepository) List(ctx context.Context) ([]domain.StaffMember, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, active, categories, locations, created_at, updated_at FROM staff_members WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []domain.StaffMember
	for rows.Next() {
		var s domain.StaffMember
		if err := rows.Scan(&s.ID, &s.Name, &s.Active, &s.Categories, &s.Locations, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// ListBusyIntervals returns occupied minutes-from-midnight ranges for a
// staff member on a calendar date, from non-cancelled bookings and externally
// synced busy time.
func (r *PGStaffRepository) ListBusyIntervals(ctx context.Context, staffID int64, date time.Time) ([]domain.BusyInterval, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	next := day.AddDate(0, 0, 1)

	rows, err := r.db.Query(ctx, `
		SELECT start_time, end_time, location_id FROM bookings
		WHERE staff_id=$1 AND status <> 'CANCELLED' AND start_time < $3 AND end_time > $2
		UNION ALL
		SELECT start_time, end_time, 0 FROM external_busy_times
		WHERE staff_id=$1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, staffID, day, next)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []domain.BusyInterval
	for rows.Next() {
		var start, end time.Time
		var loc int64
		if err := rows.Scan(&start, &end, &loc); err != nil {
			return nil, err
		}
		busy = append(busy, domain.BusyInterval{
			StartMin:   minutesIntoDay(start, day),
			EndMin:     minutesIntoDay(end, day),
			LocationID: loc,
		})
	}
	return busy, rows.Err()
}

func (r *PGStaffRepository) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, zip_code FROM locations WHERE id=$1`, id)
	var l domain.Location
	if err := row.Scan(&l.ID, &l.Name, &l.ZipCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT start_min, end_min FROM location_time_windows WHERE location_id=$1 ORDER BY start_min`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var w domain.TimeWindow
		if err := rows.Scan(&w.StartMin, &w.EndMin); err != nil {
			return nil, err
		}
		l.TimeWindows = append(l.TimeWindows, w)
	}
	return &l, rows.Err()
}

// minutesIntoDay clips a timestamp to [0, 1440] minutes of the given day,
// so intervals spilling over midnight stay within the day being generated.
func minutesIntoDay(t time.Time, day time.Time) int {
	m := int(t.Sub(day) / time.Minute)
	if m < 0 {
		return 0
	}
	if m > 1440 {
		return 1440
	}
	return m
}

var _ StaffRepository = (*PGStaffRepository)(nil)
