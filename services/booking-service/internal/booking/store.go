package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// Store is the persistence the write path needs outside a transaction.
// Lookups return model.ErrNotFound for missing rows.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	LoadTemplate(ctx context.Context, templateID string) (model.EventTemplate, error)
	LoadUser(ctx context.Context, userID string) (model.User, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	ListBookings(ctx context.Context, templateID string, limit int) ([]model.Booking, error)
	AttachMeeting(ctx context.Context, bookingID, meetingURL, meetingID, calendarEventID string) error
}

// Tx is one write transaction. Locks taken through it are released on Commit or Rollback.
type Tx interface {
	// LockParticipants serializes writers that share any of the users.
	LockParticipants(ctx context.Context, userIDs []string) error
	// LockIdempotencyKey claims key for the template and returns the booking it already produced, if any.
	LockIdempotencyKey(ctx context.Context, templateID, key string) (string, error)
	SaveIdempotencyKey(ctx context.Context, templateID, key, bookingID string) error

	CountConfirmed(ctx context.Context, templateID string, userIDs []string) (map[string]int, error)
	// InsertBooking returns model.ErrSlotUnavailable when the assignee already holds an overlapping booking.
	InsertBooking(ctx context.Context, b *model.Booking) error
	GetBookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string) (time.Time, error)
	AddEvent(ctx context.Context, evt outbox.Event) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Gate recomputes slots for the write path.
type Gate interface {
	SlotsForTemplate(ctx context.Context, tpl model.EventTemplate, date tz.Date, guest *time.Location) ([]model.Slot, error)
}
