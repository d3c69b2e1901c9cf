package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// BuildWindows returns a participant's raw availability on date d, where d and every wall-clock
// time are read in loc (the schedule's zone, never the guest's).
//
// A blocking override empties the day. Otherwise override windows for d, if any, replace the weekly
// rules for d. Otherwise every weekly rule for d's weekday applies. The result is sorted and disjoint.
func BuildWindows(rules []model.WeeklyRule, overrides []model.DateOverride, d tz.Date, loc *time.Location) []interval.Interval {
	var explicit []model.DateOverride
	for _, o := range overrides {
		if o.Date != d {
			continue
		}
		if o.Blocked {
			return nil
		}
		if o.HasWindow() {
			explicit = append(explicit, o)
		}
	}

	var out []interval.Interval
	if len(explicit) > 0 {
		for _, o := range explicit {
			out = appendWindow(out, d, *o.Start, *o.End, loc)
		}
		return interval.Merge(out)
	}

	weekday := d.Weekday()
	for _, r := range rules {
		if r.Day != weekday {
			continue
		}
		out = appendWindow(out, d, r.Start, r.End, loc)
	}
	return interval.Merge(out)
}

func appendWindow(out []interval.Interval, d tz.Date, start, end tz.Clock, loc *time.Location) []interval.Interval {
	w := interval.Interval{
		Start: tz.LocalToInstant(d, start, loc),
		End:   tz.LocalToInstant(d, end, loc),
	}
	// A window squeezed shut by a DST gap contributes nothing.
	if w.Empty() {
		return out
	}
	return append(out, w)
}

// BuildWindowsForDates concatenates BuildWindows over several dates.
func BuildWindowsForDates(rules []model.WeeklyRule, overrides []model.DateOverride, dates []tz.Date, loc *time.Location) []interval.Interval {
	var out []interval.Interval
	for _, d := range dates {
		out = append(out, BuildWindows(rules, overrides, d, loc)...)
	}
	return interval.Merge(out)
}
