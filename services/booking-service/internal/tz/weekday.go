package tz

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the symbolic day-of-week stored on weekly rules.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var byStdWeekday = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

func WeekdayOf(w time.Weekday) Weekday {
	return byStdWeekday[w]
}

func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range byStdWeekday {
		if v == w {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown day of week %q", s)
}
