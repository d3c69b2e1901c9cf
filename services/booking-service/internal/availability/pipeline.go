package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Bounds limits how soon and how far ahead a slot may start.
type Bounds struct {
	Now        time.Time
	MinNotice  time.Duration
	MaxAdvance time.Duration
}

func BoundsFor(tpl model.EventTemplate, now time.Time) Bounds {
	return Bounds{
		Now:        now,
		MinNotice:  time.Duration(tpl.MinNoticeMinutes) * time.Minute,
		MaxAdvance: time.Duration(tpl.MaxAdvanceDays) * 24 * time.Hour,
	}
}

// Allows reports whether a slot starting at start satisfies both bounds. Both ends are inclusive.
func (b Bounds) Allows(start time.Time) bool {
	if start.Before(b.Now.Add(b.MinNotice)) {
		return false
	}
	return !start.After(b.Now.Add(b.MaxAdvance))
}

// ParticipantInput is everything the pipeline needs for one participant.
type ParticipantInput struct {
	Windows  []interval.Interval
	Busy     []interval.Interval
	Bookings []interval.Interval // already expanded by buffers
	Duration time.Duration
	Bounds   Bounds
}

// ParticipantSlots slices the windows into back-to-back slots of exactly Duration, then drops slots that
// overlap busy time or a buffered booking and slots outside the bounds. Slicing happens before
// subtraction so every slot stays on its window's grid.
func ParticipantSlots(in ParticipantInput) []interval.Interval {
	blocked := interval.Merge(append(append([]interval.Interval(nil), in.Busy...), in.Bookings...))

	var out []interval.Interval
	for _, s := range Slice(in.Windows, in.Duration) {
		if !in.Bounds.Allows(s.Start) || overlapsAny(s, blocked) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// overlapsAny expects blocked sorted and merged.
func overlapsAny(s interval.Interval, blocked []interval.Interval) bool {
	i := sort.Search(len(blocked), func(i int) bool { return blocked[i].End.After(s.Start) })
	return i < len(blocked) && blocked[i].Overlaps(s)
}

// Slice cuts each window into consecutive slots of length d starting at the window start.
// A trailing remainder shorter than d is discarded.
func Slice(windows []interval.Interval, d time.Duration) []interval.Interval {
	if d <= 0 {
		return nil
	}
	var slots []interval.Interval
	for _, w := range windows {
		for t := w.Start; !t.Add(d).After(w.End); t = t.Add(d) {
			slots = append(slots, interval.Interval{Start: t, End: t.Add(d)})
		}
	}
	return slots
}

// BufferedBookings returns the intervals blocked by bookings, widened by the template buffers.
// Only confirmed bookings block time.
func BufferedBookings(bookings []model.Booking, before, after time.Duration) []interval.Interval {
	out := make([]interval.Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		out = append(out, interval.Interval{Start: b.StartTime, End: b.EndTime}.Expand(before, after))
	}
	return out
}

// BookingsFor selects the bookings that block userID. In all_available mode every booking of the
// template blocks every participant.
func BookingsFor(userID string, mode model.SchedulingMode, bookings []model.Booking) []model.Booking {
	if mode == model.ModeAllAvailable {
		return bookings
	}
	var out []model.Booking
	for _, b := range bookings {
		if b.AssignedUserID == userID {
			out = append(out, b)
		}
	}
	return out
}
