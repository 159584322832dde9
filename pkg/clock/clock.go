// Package clock resolves calendar dates in the institute's time zone.
package clock

import (
	"fmt"
	"time"
)

// Clock returns the current instant. Sweeps take a Clock so tests can pin "today".
type Clock interface {
	Now() time.Time
}

// Zone is a wall clock bound to a location.
type Zone struct {
	loc *time.Location
	now func() time.Time
}

// NewZone loads the named IANA location. An empty name means UTC.
func NewZone(name string) (*Zone, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{loc: loc, now: time.Now}, nil
}

// UTC returns a zone tracking the system clock in UTC.
func UTC() *Zone {
	return &Zone{loc: time.UTC, now: time.Now}
}

// Fixed returns a zone whose Now always reports t. Used by the sweep CLI's -today flag and tests.
func Fixed(t time.Time) *Zone {
	return &Zone{loc: t.Location(), now: func() time.Time { return t }}
}

// Location returns the zone's location.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// Now implements Clock.
func (z *Zone) Now() time.Time {
	return z.now().In(z.loc)
}

// Today returns midnight of the current date in the zone, expressed in UTC so that it
// compares cleanly with DATE columns scanned by lib/pq.
func (z *Zone) Today() time.Time {
	return Date(z.Now())
}

// Date truncates t to its calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months, clamping to the last day of the target month
// (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return t, nil
}
