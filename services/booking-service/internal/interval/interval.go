// Package interval implements arithmetic over half-open time intervals [Start, End).
package interval

import (
	"sort"
	"time"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether i and o share any instant.
// Half-open: [a,b) and [c,d) overlap iff c < b && d > a, so touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return o.Start.Before(i.End) && o.End.After(i.Start)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Subtract removes busy from window. The result has zero, one or two pieces.
func Subtract(window, busy Interval) []Interval {
	if window.Empty() {
		return nil
	}
	if busy.Empty() || !window.Overlaps(busy) {
		return []Interval{window}
	}

	var out []Interval
	if busy.Start.After(window.Start) {
		out = append(out, Interval{Start: window.Start, End: busy.Start})
	}
	if busy.End.Before(window.End) {
		out = append(out, Interval{Start: busy.End, End: window.End})
	}
	return out
}

// SubtractAll removes every busy interval from every window. Output is sorted by start.
func SubtractAll(windows []Interval, busy []Interval) []Interval {
	remaining := make([]Interval, 0, len(windows))
	for _, w := range windows {
		if !w.Empty() {
			remaining = append(remaining, w)
		}
	}
	for _, b := range busy {
		if b.Empty() {
			continue
		}
		var next []Interval
		for _, w := range remaining {
			next = append(next, Subtract(w, b)...)
		}
		remaining = next
	}
	Sort(remaining)
	return remaining
}

// Merge coalesces overlapping or touching intervals. The input is not modified.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	Sort(sorted)

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Sort orders intervals by start, then end.
func Sort(in []Interval) {
	sort.Slice(in, func(a, b int) bool {
		if in[a].Start.Equal(in[b].Start) {
			return in[a].End.Before(in[b].End)
		}
		return in[a].Start.Before(in[b].Start)
	})
}

// Expand widens i by before on the left and after on the right.
func (i Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}
