package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/kafka"
	"github.com/avdeev-dev/slotbook/internal/repository"
	"github.com/avdeev-dev/slotbook/monitoring"
	"github.com/google/uuid"
)

type ReservationUseCase interface {
	Hold(ctx context.Context, slot domain.AvailabilitySlot, sessionID string) (*domain.Reservation, error)
	Confirm(ctx context.Context, input ConfirmInput) (*domain.Booking, error)
	Release(ctx context.Context, sessionID string) error
	CancelBooking(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error)
	ExpireStaleHolds(ctx context.Context) ([]domain.TimelineRange, error)
}

// Cache is the redis fast path in front of timeline holds. Nil cache is
// valid: the database conditional write alone is correct.
type Cache interface {
	AcquireHoldLock(ctx context.Context, staffID int64, start time.Time, ttl time.Duration) (bool, error)
	ReleaseHoldLock(ctx context.Context, staffID int64, start time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ConfirmInput struct {
	SessionID       string
	UserID          int64
	StaffID         int64
	LocationID      int64
	CategoryCode    string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
}

type Coordinator struct {
	timeline ranges
	bookings repository.BookingRepository
	cache    Cache
	producer Producer
	topic    string
	holdTTL  time.Duration
}

// ranges is the subset of TimelineRepository the coordinator needs.
type ranges interface {
	HoldRange(ctx context.Context, staffID int64, start, end time.Time, sessionID string, heldUntil time.Time) (*domain.TimelineRange, error)
	ListOverlapping(ctx context.Context, staffID int64, start, end time.Time) ([]domain.TimelineRange, error)
	ReleaseBySession(ctx context.Context, sessionID string) ([]domain.TimelineRange, error)
	ReopenBookedRange(ctx context.Context, staffID int64, start, end time.Time) error
	ExpireHeldBefore(ctx context.Context, deadline time.Time) ([]domain.TimelineRange, error)
}

func NewCoordinator(timeline repository.TimelineRepository, bookings repository.BookingRepository, cache Cache, producer Producer, topic string, holdTTL time.Duration) *Coordinator {
	return &Coordinator{
		timeline: timeline,
		bookings: bookings,
		cache:    cache,
		producer: producer,
		topic:    topic,
		holdTTL:  holdTTL,
	}
}

// Hold takes an exclusive time-boxed hold on the slot's range. The primary
// range is a single conditional write; only after it commits are the
// overlapping ranges for the same staff member held too, across all
// locations and categories. Secondary failures are logged, not retried:
// the primary hold already guarantees correctness for the booked range,
// secondaries only keep other availability views consistent.
func (c *Coordinator) Hold(ctx context.Context, slot domain.AvailabilitySlot, sessionID string) (*domain.Reservation, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	start, end := slot.StartTime(), slot.EndTime()
	heldUntil := time.Now().Add(c.holdTTL)

	locked := false
	if c.cache != nil {
		ok, err := c.cache.AcquireHoldLock(ctx, slot.StaffID, start, c.holdTTL)
		if err != nil {
			slog.Warn("hold lock fast path unavailable", "staff_id", slot.StaffID, "error", err)
		} else if !ok {
			monitoring.RecordHold("conflict")
			return nil, domain.ErrSlotConflict
		} else {
			locked = true
		}
	}

	primary, err := c.timeline.HoldRange(ctx, slot.StaffID, start, end, sessionID, heldUntil)
	if err != nil {
		if locked {
			_ = c.cache.ReleaseHoldLock(ctx, slot.StaffID, start)
		}
		if errors.Is(err, domain.ErrSlotConflict) {
			monitoring.RecordHold("conflict")
		}
		return nil, err
	}
	monitoring.RecordHold("ok")

	c.holdOverlapping(ctx, slot.StaffID, start, end, primary.ID, sessionID, heldUntil)

	c.publish(ctx, kafka.BookingEvent{
		Type:      "slot_held",
		StaffID:   slot.StaffID,
		StartTime: start,
		EndTime:   end,
	}, sessionID)

	return &domain.Reservation{
		StaffID:   slot.StaffID,
		StartTime: start,
		EndTime:   end,
		SessionID: sessionID,
		HeldUntil: heldUntil,
	}, nil
}

func (c *Coordinator) holdOverlapping(ctx context.Context, staffID int64, start, end time.Time, primaryID int64, sessionID string, heldUntil time.Time) {
	overlapping, err := c.timeline.ListOverlapping(ctx, staffID, start, end)
	if err != nil {
		slog.Warn("listing overlapping ranges failed", "staff_id", staffID, "error", err)
		return
	}
	now := time.Now()
	for _, r := range overlapping {
		if r.ID == primaryID || !r.Available(now) {
			continue
		}
		if _, err := c.timeline.HoldRange(ctx, staffID, r.StartTime, r.EndTime, sessionID, heldUntil); err != nil {
			slog.Warn("secondary range hold failed", "staff_id", staffID, "start", r.StartTime, "error", err)
		}
	}
}

// Confirm converts the session's primary hold into a durable booking. An
// expired or foreign hold surfaces as ErrReservationExpired and the caller
// must re-request a slot.
func (c *Coordinator) Confirm(ctx context.Context, input ConfirmInput) (*domain.Booking, error) {
	booking := &domain.Booking{
		UserID:          input.UserID,
		StaffID:         input.StaffID,
		LocationID:      input.LocationID,
		CategoryCode:    input.CategoryCode,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		DurationMinutes: input.DurationMinutes,
	}

	if err := c.bookings.CreateFromHold(ctx, booking, input.SessionID); err != nil {
		return nil, err
	}

	if c.cache != nil {
		_ = c.cache.ReleaseHoldLock(ctx, input.StaffID, input.StartTime)
	}
	c.publish(ctx, kafka.BookingEvent{
		Type:       "booking_created",
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		StaffID:    booking.StaffID,
		LocationID: booking.LocationID,
		Category:   booking.CategoryCode,
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		Status:     string(booking.Status),
	}, input.SessionID)

	return booking, nil
}

// Release frees every range still held by the session, dropping the
// fast-path lock for each freed range so a new hold does not have to
// wait out the lock TTL.
func (c *Coordinator) Release(ctx context.Context, sessionID string) error {
	freed, err := c.timeline.ReleaseBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if c.cache != nil {
		for _, r := range freed {
			_ = c.cache.ReleaseHoldLock(ctx, r.StaffID, r.StartTime)
		}
	}
	return nil
}

// CancelBooking tombstones the booking and reopens its timeline range.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error) {
	booking, err := c.bookings.Cancel(ctx, bookingID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Already cancelled or never existed; report the current row.
			return c.bookings.GetByID(ctx, bookingID)
		}
		return nil, err
	}

	if err := c.timeline.ReopenBookedRange(ctx, booking.StaffID, booking.StartTime, booking.EndTime); err != nil {
		return nil, fmt.Errorf("reopen timeline range for booking %d: %w", bookingID, err)
	}
	if c.cache != nil {
		_ = c.cache.ReleaseHoldLock(ctx, booking.StaffID, booking.StartTime)
	}

	c.publish(ctx, kafka.BookingEvent{
		Type:       "booking_cancelled",
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		StaffID:    booking.StaffID,
		LocationID: booking.LocationID,
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		Status:     string(booking.Status),
	}, fmt.Sprintf("booking-%d", booking.ID))

	return booking, nil
}

// ExpireStaleHolds sweeps lapsed holds. Inventory hygiene only: the
// conditional writes already treat expired holds as open.
func (c *Coordinator) ExpireStaleHolds(ctx context.Context) ([]domain.TimelineRange, error) {
	expired, err := c.timeline.ExpireHeldBefore(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	for _, r := range expired {
		if c.cache != nil {
			_ = c.cache.ReleaseHoldLock(ctx, r.StaffID, r.StartTime)
		}
	}
	return expired, nil
}

func (c *Coordinator) publish(ctx context.Context, event kafka.BookingEvent, key string) {
	if c.producer == nil || c.topic == "" {
		return
	}
	if err := c.producer.Publish(ctx, c.topic, key, event); err != nil {
		slog.Warn("publish booking event failed", "type", event.Type, "error", err)
	}
}

var _ ReservationUseCase = (*Coordinator)(nil)
