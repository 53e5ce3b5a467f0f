package domain

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed           BookingStatus = "CONFIRMED"
	BookingStatusScheduled           BookingStatus = "SCHEDULED"
	BookingStatusPendingConfirmation BookingStatus = "PENDING_CONFIRMATION"
	BookingStatusCompleted           BookingStatus = "COMPLETED"
	BookingStatusCancelled           BookingStatus = "CANCELLED"
)

type Booking struct {
	ID              int64
	UserID          int64
	StaffID         int64
	LocationID      int64
	CategoryCode    string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Status          BookingStatus
	// Cancellation tombstone. Bookings are never hard-deleted.
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (b *Booking) Cancelled() bool {
	return b.Status == BookingStatusCancelled
}

// Overlaps reports whether the booking intersects [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}
