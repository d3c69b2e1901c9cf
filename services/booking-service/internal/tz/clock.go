package tz

import (
	"fmt"
	"regexp"
	"strconv"
)

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("time %q must be HH:MM (00:00-23:59)", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: min}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(o Clock) bool {
	return c.Minutes() < o.Minutes()
}
