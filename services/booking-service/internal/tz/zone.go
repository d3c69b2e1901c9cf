// Package tz converts between civil (date, wall-clock, IANA zone) triples and absolute instants.
//
// Ambiguous wall-clock times are resolved with the UTC offset in effect at the start of that local
// calendar day. In a fall-back overlap this picks the first occurrence. In a spring-forward gap the
// time is read with the pre-transition offset, so 02:30 on a day that skips 02:00-03:00 becomes 03:30.
package tz

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var zones sync.Map // name -> *time.Location

// LoadZone resolves an IANA zone name. Empty names and "Local" are rejected.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("timezone %q is not an IANA zone name", name)
	}
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	zones.Store(name, loc)
	return loc, nil
}

func MustLoadZone(name string) *time.Location {
	loc, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// LocalToInstant returns the instant at which the wall clock in loc reads c on date d.
func LocalToInstant(d Date, c Clock, loc *time.Location) time.Time {
	naive := time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, time.UTC)
	startOffset := offsetAt(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc))
	endOffset := offsetAt(time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc))

	if t, ok := resolve(naive, startOffset, d, c, loc); ok {
		return t
	}
	if endOffset != startOffset {
		if t, ok := resolve(naive, endOffset, d, c, loc); ok {
			return t
		}
	}
	// Gap: no offset reproduces the wall clock.
	t, _ := resolve(naive, startOffset, d, c, loc)
	return t
}

// StartOfDay is the first instant of d in loc.
func StartOfDay(d Date, loc *time.Location) time.Time {
	return LocalToInstant(d, Clock{}, loc)
}

// CalendarDate returns the date shown by a wall calendar in loc at instant t.
func CalendarDate(t time.Time, loc *time.Location) Date {
	return DateOf(t.In(loc))
}

// DayOfWeek returns the weekday shown in loc at instant t.
func DayOfWeek(t time.Time, loc *time.Location) Weekday {
	return WeekdayOf(t.In(loc).Weekday())
}

func offsetAt(t time.Time) time.Duration {
	_, secs := t.Zone()
	return time.Duration(secs) * time.Second
}

func resolve(naive time.Time, offset time.Duration, d Date, c Clock, loc *time.Location) (time.Time, bool) {
	t := naive.Add(-offset)
	local := t.In(loc)
	ok := DateOf(local) == d && local.Hour() == c.Hour && local.Minute() == c.Minute
	return t.UTC(), ok
}
