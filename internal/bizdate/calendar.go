// Package bizdate answers "what day is it" in the business timezone.
//
// Blob paths, the daily file name and the check-today listing all use the
// same calendar so they agree regardless of the server's local zone.
package bizdate

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for images without /usr/share/zoneinfo
)

// Layout is the business date format.
const Layout = "2006-01-02"

// DefaultTimezone is used when no zone is configured.
const DefaultTimezone = "America/Bogota"

// Calendar maps instants to business dates in a fixed zone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Calendar for the named IANA zone.
func New(timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy of c that reads the time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the business timezone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current business date as YYYY-MM-DD.
func (c *Calendar) Today() string {
	return c.DateOf(c.now())
}

// DateOf returns the business date of t.
func (c *Calendar) DateOf(t time.Time) string {
	return t.In(c.loc).Format(Layout)
}

// DayRange returns the UTC bounds [start, end) of a business date.
func (c *Calendar) DayRange(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(Layout, date, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse business date %q: %w", date, err)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// Compact turns YYYY-MM-DD into YYYYMMDD.
func Compact(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

// ParseDate checks that s is a real YYYY-MM-DD date.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t.Format(Layout), nil
}
