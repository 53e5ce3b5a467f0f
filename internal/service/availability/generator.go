package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/repository"
)

// stepMinutes is the fixed walk step for candidate slot starts.
const stepMinutes = 15

// dayMinutes bounds buffer zones to the calendar day.
const dayMinutes = 1440

type AvailabilityUseCase interface {
	GenerateSlots(ctx context.Context, req SlotRequest) ([]domain.AvailabilitySlot, error)
}

// Cache is the read-through reference cache. Misses fall back to the
// repository and a failed cache write is never fatal.
type Cache interface {
	GetStaff(ctx context.Context, staffID int64) (*domain.StaffMember, error)
	SetStaff(ctx context.Context, staff *domain.StaffMember) error
	GetLocation(ctx context.Context, locationID int64) (*domain.Location, error)
	SetLocation(ctx context.Context, loc *domain.Location) error
}

// TravelTimeProvider resolves minutes of travel between two zip codes.
// An error means "unavailable" and the caller must fail open.
type TravelTimeProvider interface {
	GetTravelMinutes(ctx context.Context, fromZip, toZip string) (int, error)
}

type SlotRequest struct {
	StaffID         int64
	LocationID      int64
	CategoryCode    string
	Date            time.Time
	DurationMinutes int
}

type AvailabilityService struct {
	staff  repository.StaffRepository
	cache  Cache
	travel TravelTimeProvider

	bufferMinutes      int
	travelMarginMin    int
	adjacencyWindowMin int
}

type Option func(*AvailabilityService)

// WithTravelFilter enables the travel-time pass over generated slots.
func WithTravelFilter(provider TravelTimeProvider, marginMin, adjacencyWindowMin int) Option {
	return func(s *AvailabilityService) {
		s.travel = provider
		s.travelMarginMin = marginMin
		s.adjacencyWindowMin = adjacencyWindowMin
	}
}

func NewAvailabilityService(staff repository.StaffRepository, cache Cache, bufferMinutes int, opts ...Option) *AvailabilityService {
	s := &AvailabilityService{
		staff:         staff,
		cache:         cache,
		bufferMinutes: bufferMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSlots produces the free windows for a staff member at a location
// on one date. Generation is deterministic: identical inputs always yield
// identical slot lists, with the travel check running as a later pass over
// the same list.
func (s *AvailabilityService) GenerateSlots(ctx context.Context, req SlotRequest) ([]domain.AvailabilitySlot, error) {
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}

	staff, err := s.getStaff(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	if !staff.Active || !staff.ServesCategory(req.CategoryCode) || !staff.WorksAt(req.LocationID) {
		return nil, nil
	}

	loc, err := s.getLocation(ctx, req.LocationID)
	if err != nil {
		return nil, err
	}

	busy, err := s.staff.ListBusyIntervals(ctx, req.StaffID, req.Date)
	if err != nil {
		return nil, err
	}

	slots := generate(staff, loc, req, busy, s.bufferMinutes)

	if s.travel != nil {
		slots = s.filterByTravelTime(ctx, slots, busy, loc)
	}
	return slots, nil
}

// generate is the pure slot walk. No working-hours row for the date's
// weekday means no slots; there is no default schedule.
func generate(staff *domain.StaffMember, loc *domain.Location, req SlotRequest, busy []domain.BusyInterval, bufferMinutes int) []domain.AvailabilitySlot {
	hours, ok := staff.HoursFor(req.Date.Weekday())
	if !ok {
		return nil
	}

	zones := bufferZones(busy, bufferMinutes)

	var slots []domain.AvailabilitySlot
	for t := hours.StartMin; t+req.DurationMinutes <= hours.EndMin; t += stepMinutes {
		end := t + req.DurationMinutes
		if overlapsAny(zones, t, end) {
			continue
		}
		if len(loc.TimeWindows) > 0 && !startsInWindow(loc.TimeWindows, t) {
			continue
		}
		slots = append(slots, domain.AvailabilitySlot{
			StaffID:         req.StaffID,
			LocationID:      req.LocationID,
			CategoryCode:    req.CategoryCode,
			Date:            req.Date,
			StartMin:        t,
			EndMin:          end,
			DurationMinutes: req.DurationMinutes,
		})
	}
	return slots
}

// bufferZones widens each busy interval by the buffer on both sides,
// clipped to [0, 1440].
func bufferZones(busy []domain.BusyInterval, bufferMinutes int) []domain.BufferZone {
	zones := make([]domain.BufferZone, 0, len(busy))
	for _, b := range busy {
		start := b.StartMin - bufferMinutes
		if start < 0 {
			start = 0
		}
		end := b.EndMin + bufferMinutes
		if end > dayMinutes {
			end = dayMinutes
		}
		zones = append(zones, domain.BufferZone{StartMin: start, EndMin: end})
	}
	return zones
}

func overlapsAny(zones []domain.BufferZone, start, end int) bool {
	for _, z := range zones {
		if z.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func startsInWindow(windows []domain.TimeWindow, start int) bool {
	for _, w := range windows {
		if w.Contains(start) {
			return true
		}
	}
	return false
}

// filterByTravelTime drops slots that sit next to an existing booking at
// another location when the gap cannot absorb the travel plus the safety
// margin. Only slots within the adjacency window of a booking are checked,
// to bound distance lookups; a failed lookup keeps the slot (fail open)
// rather than silently hiding inventory.
func (s *AvailabilityService) filterByTravelTime(ctx context.Context, slots []domain.AvailabilitySlot, busy []domain.BusyInterval, loc *domain.Location) []domain.AvailabilitySlot {
	kept := slots[:0]
	for _, slot := range slots {
		if s.slotReachable(ctx, slot, busy, loc) {
			kept = append(kept, slot)
		}
	}
	return kept
}

func (s *AvailabilityService) slotReachable(ctx context.Context, slot domain.AvailabilitySlot, busy []domain.BusyInterval, loc *domain.Location) bool {
	for _, b := range busy {
		if b.LocationID == 0 || b.LocationID == slot.LocationID {
			continue
		}

		var gap int
		switch {
		case b.EndMin <= slot.StartMin:
			gap = slot.StartMin - b.EndMin
		case b.StartMin >= slot.EndMin:
			gap = b.StartMin - slot.EndMin
		default:
			continue
		}
		if gap > s.adjacencyWindowMin {
			continue
		}

		other, err := s.getLocation(ctx, b.LocationID)
		if err != nil {
			slog.Warn("travel filter: location lookup failed, keeping slot", "location_id", b.LocationID, "error", err)
			continue
		}
		minutes, err := s.travel.GetTravelMinutes(ctx, other.ZipCode, loc.ZipCode)
		if err != nil {
			slog.Warn("travel filter: distance unavailable, keeping slot", "from", other.ZipCode, "to", loc.ZipCode, "error", err)
			continue
		}
		if gap < minutes+s.travelMarginMin {
			return false
		}
	}
	return true
}

func (s *AvailabilityService) getStaff(ctx context.Context, staffID int64) (*domain.StaffMember, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetStaff(ctx, staffID); err == nil && cached != nil {
			return cached, nil
		}
	}

	staff, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetStaff(ctx, staff)
	}
	return staff, nil
}

func (s *AvailabilityService) getLocation(ctx context.Context, locationID int64) (*domain.Location, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetLocation(ctx, locationID); err == nil && cached != nil {
			return cached, nil
		}
	}

	loc, err := s.staff.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetLocation(ctx, loc)
	}
	return loc, nil
}

var _ AvailabilityUseCase = (*AvailabilityService)(nil)
