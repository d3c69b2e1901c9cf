// Package busy reads participants' external calendar busy time.
package busy

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
)

// Source reads one kind of calendar. A user without a connection of that kind has no busy time.
type Source interface {
	Name() string
	Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error)
}

// ProviderError tags a failure with the source that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Multi merges the busy time of several sources. Any failing source fails the whole read.
type Multi []Source

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	var all []interval.Interval
	for _, s := range m {
		got, err := s.Busy(ctx, userID, start, end)
		if err != nil {
			return nil, &ProviderError{Provider: s.Name(), Err: err}
		}
		all = append(all, got...)
	}
	return interval.Merge(all), nil
}

// clip keeps the part of each interval that falls in [start, end).
func clip(in []interval.Interval, start, end time.Time) []interval.Interval {
	window := interval.Interval{Start: start, End: end}
	out := make([]interval.Interval, 0, len(in))
	for _, iv := range in {
		if !window.Overlaps(iv) {
			continue
		}
		if iv.Start.Before(start) {
			iv.Start = start
		}
		if iv.End.After(end) {
			iv.End = end
		}
		out = append(out, iv)
	}
	return out
}
