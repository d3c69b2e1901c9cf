// Package assignment picks the organizer for a new booking.
package assignment

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Counter reports how many confirmed bookings each user holds for a template.
// Users without bookings may be absent from the result.
type Counter interface {
	CountConfirmed(ctx context.Context, templateID string, userIDs []string) (map[string]int, error)
}

// Select returns the eligible participant with the fewest confirmed bookings for the template.
// Ties go to whoever comes first in eligible. A single candidate is returned without counting.
func Select(ctx context.Context, counter Counter, templateID string, eligible []string) (string, error) {
	switch len(eligible) {
	case 0:
		return "", model.ErrAssignmentImpossible
	case 1:
		return eligible[0], nil
	}
	counts, err := counter.CountConfirmed(ctx, templateID, eligible)
	if err != nil {
		return "", fmt.Errorf("count bookings: %w", err)
	}
	return LeastLoaded(eligible, counts), nil
}

// LeastLoaded is the pure part of Select.
func LeastLoaded(eligible []string, counts map[string]int) string {
	best := ""
	bestCount := 0
	for i, id := range eligible {
		n := counts[id]
		if i == 0 || n < bestCount {
			best, bestCount = id, n
		}
	}
	return best
}
