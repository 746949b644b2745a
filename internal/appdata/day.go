package appdata

import (
	"errors"
	"fmt"
	"time"
)

const dayKeyLayout = "2006-01-02"

// ErrInvalidDayKey indicates a day key that does not parse as a civil date.
var ErrInvalidDayKey = errors.New("appdata: invalid day key")

// DayKey identifies one civil day in the fixed competition timezone. Two
// clients in different local timezones must agree on which day a record
// belongs to, so every day computation goes through the competition location.
type DayKey string

// NewDayKey validates a YYYY-MM-DD value and returns a DayKey.
func NewDayKey(rawInput string) (DayKey, error) {
	if _, err := time.Parse(dayKeyLayout, rawInput); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDayKey, rawInput)
	}
	return DayKey(rawInput), nil
}

// DayOf returns the civil day an instant falls on in the given location.
func DayOf(instant time.Time, location *time.Location) DayKey {
	return DayKey(instant.In(location).Format(dayKeyLayout))
}

// String returns the YYYY-MM-DD representation.
func (d DayKey) String() string {
	return string(d)
}

// Start returns midnight of the civil day in the given location.
func (d DayKey) Start(location *time.Location) time.Time {
	parsed, err := time.ParseInLocation(dayKeyLayout, string(d), location)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// CanonicalInstant returns civil noon of the day in the given location.
// Records are stamped at noon so that modest clock or timezone drift between
// clients cannot push a record across a day boundary.
func (d DayKey) CanonicalInstant(location *time.Location) time.Time {
	return d.Start(location).Add(12 * time.Hour)
}

// Before reports whether d sorts strictly earlier than other.
func (d DayKey) Before(other DayKey) bool {
	return string(d) < string(other)
}

// After reports whether d sorts strictly later than other.
func (d DayKey) After(other DayKey) bool {
	return string(d) > string(other)
}

// Window is an inclusive range of civil days. Only records whose day falls
// inside the competition window are eligible for any score or statistic.
type Window struct {
	Start DayKey
	End   DayKey
}

// Contains reports whether the day falls inside the window, inclusive on both ends.
func (w Window) Contains(day DayKey) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}
