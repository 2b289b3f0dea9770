// Package timeslot handles the wall-clock strings used by bookings: HH:MM clock times,
// YYYY-MM-DD dates and "HH:MM-HH:MM" ranges. Times are kept as minutes from midnight.
package timeslot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used across the API.
const DateLayout = "2006-01-02"

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):\d{2}$`)

var (
	ErrInvalidClock = errors.New("time must be HH:MM (24h)")
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
	ErrInvalidRange = errors.New("time range must be HH:MM-HH:MM with start before end")
)

// Clock is a time of day expressed in minutes from midnight.
type Clock int

// ValidClock reports whether raw matches the accepted HH:MM pattern.
func ValidClock(raw string) bool {
	return clockPattern.MatchString(strings.TrimSpace(raw))
}

// ParseClock parses an HH:MM string.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	if !clockPattern.MatchString(raw) {
		return 0, ErrInvalidClock
	}
	parts := strings.SplitN(raw, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	if m > 59 {
		return 0, ErrInvalidClock
	}
	return Clock(h*60 + m), nil
}

// String renders the clock as zero padded HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Normalize returns the canonical HH:MM form of raw.
func Normalize(raw string) (string, error) {
	c, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// Weekday returns the day of week (0 = Sunday) for a YYYY-MM-DD date.
func Weekday(raw string) (int, error) {
	d, err := ParseDate(raw)
	if err != nil {
		return 0, err
	}
	return int(d.Weekday()), nil
}

// Interval is a half-open [Start, End) span of minutes.
type Interval struct {
	Start Clock
	End   Clock
}

// NewInterval builds the interval starting at start lasting duration minutes.
func NewInterval(start Clock, durationMinutes int) Interval {
	return Interval{Start: start, End: start + Clock(durationMinutes)}
}

// Overlaps reports whether two half-open intervals intersect. Touching endpoints do not
// overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

// Contains reports whether other lies entirely inside i.
func (i Interval) Contains(other Interval) bool {
	return i.Start <= other.Start && other.End <= i.End
}

// Duration returns the interval length in minutes.
func (i Interval) Duration() int {
	return int(i.End - i.Start)
}

// String renders the interval as "HH:MM - HH:MM".
func (i Interval) String() string {
	return i.Start.String() + " - " + i.End.String()
}

// ParseRange parses "HH:MM-HH:MM" (spaces around the dash allowed).
func ParseRange(raw string) (Interval, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return Interval{}, ErrInvalidRange
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Interval{}, ErrInvalidRange
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Interval{}, ErrInvalidRange
	}
	if start >= end {
		return Interval{}, ErrInvalidRange
	}
	return Interval{Start: start, End: end}, nil
}

// FormatRange renders an interval as the stored "HH:MM-HH:MM" form.
func FormatRange(i Interval) string {
	return i.Start.String() + "-" + i.End.String()
}

var dayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tues": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thur": 4, "thurs": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// ParseDayOfWeek accepts 0-6 or an English day name.
func ParseDayOfWeek(raw string) (int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day_of_week %d out of range 0-6", n)
		}
		return n, nil
	}
	if n, ok := dayNames[raw]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("unknown day_of_week %q", raw)
}

// DayName returns the English name of a 0-6 weekday.
func DayName(day int) string {
	if day < 0 || day > 6 {
		return ""
	}
	return time.Weekday(day).String()
}
