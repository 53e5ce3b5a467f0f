package domain

import "time"

// AvailabilitySlot is a generated candidate window. Slots are ephemeral:
// they are computed on request and never stored.
type AvailabilitySlot struct {
	StaffID         int64     `json:"staff_id"`
	LocationID      int64     `json:"location_id"`
	CategoryCode    string    `json:"category_code"`
	Date            time.Time `json:"date"`
	StartMin        int       `json:"start_min"`
	EndMin          int       `json:"end_min"`
	DurationMinutes int       `json:"duration_minutes"`
}

// StartTime anchors the slot's start minute on its calendar date.
func (s AvailabilitySlot) StartTime() time.Time {
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, s.Date.Location())
	return day.Add(time.Duration(s.StartMin) * time.Minute)
}

func (s AvailabilitySlot) EndTime() time.Time {
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, s.Date.Location())
	return day.Add(time.Duration(s.EndMin) * time.Minute)
}

// BusyInterval is occupied time on a staff member's day, in minutes from
// midnight. Sourced from existing bookings and externally synced busy time.
type BusyInterval struct {
	StartMin   int
	EndMin     int
	LocationID int64
}

// BufferZone is a busy interval widened by the buffer on both sides and
// clipped to the day.
type BufferZone struct {
	StartMin int
	EndMin   int
}

// Overlaps reports whether [startMin, endMin) intersects the zone: the
// candidate starts inside it, ends inside it, or fully contains it.
func (z BufferZone) Overlaps(startMin, endMin int) bool {
	startsInside := startMin >= z.StartMin && startMin < z.EndMin
	endsInside := endMin > z.StartMin && endMin <= z.EndMin
	contains := startMin <= z.StartMin && endMin >= z.EndMin
	return startsInside || endsInside || contains
}
