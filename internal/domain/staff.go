package domain

import "time"

// WorkingHours is one row of a staff member's weekly schedule.
// Start and End are minutes from midnight.
type WorkingHours struct {
	DayOfWeek time.Weekday
	StartMin  int
	EndMin    int
}

type StaffMember struct {
	ID        int64
	Name      string
	Active    bool
	// Categories holds the service category codes the staff member can serve.
	Categories []string
	// Locations holds the ids of locations the staff member works at.
	Locations []int64
	Hours     []WorkingHours
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HoursFor returns the working-hours row for the given weekday, or false
// when the staff member does not work that day.
func (s *StaffMember) HoursFor(day time.Weekday) (WorkingHours, bool) {
	for _, h := range s.Hours {
		if h.DayOfWeek == day {
			return h, true
		}
	}
	return WorkingHours{}, false
}

func (s *StaffMember) ServesCategory(code string) bool {
	for _, c := range s.Categories {
		if c == code {
			return true
		}
	}
	return false
}

func (s *StaffMember) WorksAt(locationID int64) bool {
	for _, l := range s.Locations {
		if l == locationID {
			return true
		}
	}
	return false
}

type Location struct {
	ID      int64
	Name    string
	ZipCode string
	// TimeWindows restricts bookable start minutes at this location.
	// Empty means the whole working-hours window is bookable.
	TimeWindows []TimeWindow
}

// TimeWindow is a bookable interval in minutes from midnight.
type TimeWindow struct {
	StartMin int
	EndMin   int
}

func (w TimeWindow) Contains(minute int) bool {
	return minute >= w.StartMin && minute < w.EndMin
}
