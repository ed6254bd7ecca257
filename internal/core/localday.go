package core

import (
	"fmt"
	"time"
)

// LocalDate is a calendar date with no timezone attached. Which instants
// it covers depends on the zone it is evaluated in.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

const localDateLayout = "2006-01-02"

// ParseLocalDate parses a date in YYYY-MM-DD form.
func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse(localDateLayout, s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("parse local date %q: %w", s, err)
	}
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the calendar date of instant t evaluated in loc.
func DateOf(t time.Time, loc *time.Location) LocalDate {
	y, m, d := t.In(loc).Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d LocalDate) IsZero() bool {
	return d == LocalDate{}
}

// Next returns the following calendar day. Month and year rollover is
// handled by time.Date normalization.
func (d LocalDate) Next() LocalDate {
	t := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, time.UTC)
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Before reports whether d is an earlier calendar day than other.
func (d LocalDate) Before(other LocalDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// UTCRange resolves the half-open instant interval [start, end) covered
// by this calendar day in loc, converted to UTC. Each boundary uses the
// zone's offset at that specific instant, so days shortened or stretched
// by DST transitions resolve to their true 23h or 25h span.
func (d LocalDate) UTCRange(loc *time.Location) (start, end time.Time) {
	next := d.Next()
	start = time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc).UTC()
	end = time.Date(next.Year, next.Month, next.Day, 0, 0, 0, 0, loc).UTC()
	return start, end
}

// ZoneResolver maps IANA zone names to locations, substituting a fixed
// fallback zone for unknown or malformed names. Lookup never fails from
// the caller's point of view.
type ZoneResolver struct {
	fallback *time.Location
}

// NewZoneResolver builds a resolver with the given fallback zone name.
// The fallback itself must resolve; this is checked once at startup.
func NewZoneResolver(fallbackZone string) (*ZoneResolver, error) {
	loc, err := time.LoadLocation(fallbackZone)
	if err != nil {
		return nil, fmt.Errorf("load fallback timezone %q: %w", fallbackZone, err)
	}
	return &ZoneResolver{fallback: loc}, nil
}

// Resolve returns the location for name, or the fallback zone (and
// ok=false) when the name is unknown.
func (r *ZoneResolver) Resolve(name string) (loc *time.Location, ok bool) {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		return r.fallback, false
	}
	return loc, true
}

// Fallback exposes the configured fallback zone.
func (r *ZoneResolver) Fallback() *time.Location {
	return r.fallback
}
