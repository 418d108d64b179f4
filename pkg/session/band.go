package session

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Band is a time-of-day interval, expressed as offsets from local midnight.
// A band whose end does not exceed its start wraps past midnight
// (e.g. 18:00-06:00).
type Band struct {
	Start time.Duration
	End   time.Duration
}

// ParseBand parses "HH:MM"-style boundaries into a Band.
func ParseBand(start, end string) (Band, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Band{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Band{}, err
	}
	return Band{Start: s, End: e}, nil
}

// ParseClock parses an "HH:MM" time-of-day into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parsing clock time %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Wraps reports whether the band spans midnight.
func (b Band) Wraps() bool {
	return b.End <= b.Start
}

// Length returns the band's duration, accounting for midnight wrap.
func (b Band) Length() time.Duration {
	if b.Wraps() {
		return day - b.Start + b.End
	}
	return b.End - b.Start
}

// Contains reports whether the instant's local time-of-day falls within the
// band, honoring midnight wrap.
func (b Band) Contains(t time.Time) bool {
	offset := clockOffset(t)
	if b.Wraps() {
		return offset >= b.Start || offset < b.End
	}
	return offset >= b.Start && offset < b.End
}

// Overlaps reports whether any instant of the session falls within the
// band on any day. Boundary checks operate on elapsed time, so sessions
// spanning midnight are handled as continuous intervals.
func (b Band) Overlaps(s Session) bool {
	if s.Duration() >= day {
		return true
	}
	// Check the band occurrences that could intersect [Start, End]: the one
	// beginning the day before the session starts through the one beginning
	// the day the session ends.
	for d := startOfDay(s.Start).Add(-day); !d.After(s.End); d = d.Add(day) {
		bandStart := d.Add(b.Start)
		bandEnd := bandStart.Add(b.Length())
		if s.Start.Before(bandEnd) && bandStart.Before(s.End.Add(time.Nanosecond)) {
			return true
		}
	}
	return false
}

// WindowOn returns the band's occurrence anchored on the given day: the
// window opening at the band start on that day and closing at the band end,
// rolling into the next day when the band wraps midnight.
func (b Band) WindowOn(dayStart time.Time) Window {
	start := startOfDay(dayStart).Add(b.Start)
	return Window{Start: start, End: start.Add(b.Length())}
}

// clockOffset returns the instant's offset from its local midnight.
func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// startOfDay returns local midnight of the instant's day.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
