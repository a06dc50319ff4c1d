package subscription

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

/* ActiveWindow restricts delivery to a daily time range on selected weekdays
 * Start > End is an overnight window (22:00-06:00), the part after midnight
 * belongs to the day the window opened on. 00:00-00:00 covers the whole day.
 * An attempt outside the window is deferred to the next opening, never dropped.
 */
type ActiveWindow struct {
	Days     []time.Weekday
	Start    string // "HH:MM"
	End      string // "HH:MM"
	TimeZone string // IANA name, empty means UTC
}

var locations sync.Map

func (w ActiveWindow) location() *time.Location {
	if w.TimeZone == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(w.TimeZone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(w.TimeZone)
	if err != nil {
		return time.UTC
	}
	locations.Store(w.TimeZone, loc)
	return loc
}

// Validate checks the clock values, weekdays and time zone
func (w ActiveWindow) Validate() error {
	start, err := parseClock(w.Start)
	if err != nil {
		return fmt.Errorf("invalid window start: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return fmt.Errorf("invalid window end: %w", err)
	}
	if start == end && start != 0 {
		return fmt.Errorf("window start and end must differ unless both are 00:00")
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", d)
		}
	}
	if w.TimeZone != "" {
		if _, err := time.LoadLocation(w.TimeZone); err != nil {
			return fmt.Errorf("invalid window time zone: %w", err)
		}
	}
	return nil
}

func (w ActiveWindow) allowed(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, day := range w.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Contains reports whether t falls inside the window
func (w ActiveWindow) Contains(t time.Time) bool {
	start, _ := parseClock(w.Start)
	end, _ := parseClock(w.End)

	local := t.In(w.location())
	minute := local.Hour()*60 + local.Minute()
	today := local.Weekday()
	yesterday := (today + 6) % 7

	switch {
	case start == end:
		return w.allowed(today)
	case start < end:
		return w.allowed(today) && minute >= start && minute < end
	default:
		return (w.allowed(today) && minute >= start) || (w.allowed(yesterday) && minute < end)
	}
}

// Next returns t when it is inside the window, otherwise the next opening after t
func (w ActiveWindow) Next(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}

	start, _ := parseClock(w.Start)
	loc := w.location()
	local := t.In(loc)

	for i := 0; i <= 7; i++ {
		opening := time.Date(local.Year(), local.Month(), local.Day()+i, start/60, start%60, 0, 0, loc)
		if opening.Before(t) || !w.allowed(opening.Weekday()) {
			continue
		}
		return opening
	}

	return t
}

// parseClock turns "HH:MM" into minutes since midnight
func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// ParseWeekday accepts full or three-letter English day names
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday: %q", s)
}
