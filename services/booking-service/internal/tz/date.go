package tz

import (
	"fmt"
	"regexp"
	"time"
)

const dateLayout = "2006-01-02"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts YYYY-MM-DD and rejects impossible dates such as 2026-02-30.
func ParseDate(s string) (Date, error) {
	if !dateRe.MatchString(s) {
		return Date{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

func (d Date) Weekday() Weekday {
	return WeekdayOf(d.midnightUTC().Weekday())
}

// DatesBetween returns every date from first to last inclusive.
func DatesBetween(first, last Date) []Date {
	var out []Date
	for d := first; !d.After(last); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
