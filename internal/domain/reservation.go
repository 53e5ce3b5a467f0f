package domain

import "time"

type RangeStatus string

const (
	RangeStatusOpen   RangeStatus = "OPEN"
	RangeStatusHeld   RangeStatus = "HELD"
	RangeStatusBooked RangeStatus = "BOOKED"
)

// TimelineRange is one row of a staff member's timeline: a time range that
// is open, held by a checkout session, or durably booked. The timeline is
// the single source of truth for a staff member's occupancy across all
// locations and categories.
type TimelineRange struct {
	ID            int64
	StaffID       int64
	StartTime     time.Time
	EndTime       time.Time
	Status        RangeStatus
	HeldBySession string
	HeldUntil     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HoldExpired reports whether a HELD range's hold has lapsed. Expiry is
// lazy: rows are not swept proactively, so every reader must check this
// before trusting Status.
func (r *TimelineRange) HoldExpired(now time.Time) bool {
	return r.Status == RangeStatusHeld && !r.HeldUntil.After(now)
}

// Available reports whether the range can be taken by a new hold at now.
func (r *TimelineRange) Available(now time.Time) bool {
	switch r.Status {
	case RangeStatusOpen:
		return true
	case RangeStatusHeld:
		return r.HoldExpired(now)
	default:
		return false
	}
}

// Reservation is the caller-facing view of a successful hold.
type Reservation struct {
	StaffID   int64     `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	SessionID string    `json:"session_id"`
	HeldUntil time.Time `json:"held_until"`
}
