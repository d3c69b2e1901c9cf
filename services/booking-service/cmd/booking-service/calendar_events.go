package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
)

// busyInvalidator drops whatever is cached for a user's external calendar.
type busyInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// tokenForgetter drops a cached OAuth token source so the next call re-reads the stored token.
type tokenForgetter interface {
	Forget(userID string)
}

type calendarChanged struct {
	UserID string `json:"user_id"`
}

// newCalendarChangedHandler handles calendar.busy.changed events published by the calendar sync side.
// Malformed messages are logged and acknowledged. A cache failure is returned so the consumer retries it.
func newCalendarChangedHandler(cache busyInvalidator, tokens tokenForgetter, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload calendarChanged
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid calendar event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		userID := strings.TrimSpace(payload.UserID)
		if userID == "" {
			logger.Error("calendar event without user_id", "topic", msg.Topic)
			return nil
		}
		if tokens != nil {
			tokens.Forget(userID)
		}
		if cache == nil {
			return nil
		}
		return cache.Invalidate(ctx, userID)
	}
}
