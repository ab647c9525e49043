// Package datetime turns booking wall-clock input into provider instants.
package datetime

import (
	"errors"
	"fmt"
	"time"

	"bookcal/internal/apperr"
)

const (
	dateLayout = "2006-01-02"

	// DefaultDurationMinutes applies when a booking omits durationMinutes.
	DefaultDurationMinutes = 60
)

var clockLayouts = []string{"15:04", "15:04:05"}

// Normalizer resolves date and time input in a single fixed location.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for loc. A nil loc means UTC.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone wall-clock input is interpreted in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Combine joins a calendar date and a wall-clock time into the start instant.
func (n *Normalizer) Combine(date, clock string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, &apperr.Error{
			Kind:       apperr.KindInvalidDateTime,
			Op:         "datetime.Combine",
			Violations: []apperr.Violation{{Field: "date", Message: err.Error()}},
			Err:        err,
		}
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, &apperr.Error{
			Kind:       apperr.KindInvalidDateTime,
			Op:         "datetime.Combine",
			Violations: []apperr.Violation{{Field: "time", Message: err.Error()}},
			Err:        err,
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, n.loc), nil
}

// DeriveEnd adds durationMinutes to start.
func DeriveEnd(start time.Time, durationMinutes int) (time.Time, error) {
	if durationMinutes <= 0 {
		return time.Time{}, &apperr.Error{
			Kind:       apperr.KindInvalidDuration,
			Op:         "datetime.DeriveEnd",
			Violations: []apperr.Violation{{Field: "durationMinutes", Message: "must be a positive integer"}},
			Err:        fmt.Errorf("non-positive duration %d", durationMinutes),
		}
	}
	return start.Add(time.Duration(durationMinutes) * time.Minute), nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.New("must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// ParseClock parses an HH:MM or HH:MM:SS wall-clock time.
func ParseClock(s string) (time.Time, error) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("must be a time in HH:MM format")
}
