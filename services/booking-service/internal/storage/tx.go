package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// Tx is one write-path transaction.
type Tx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *Tx) LockParticipants(ctx context.Context, userIDs []string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('participant:' || $1))`, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) LockIdempotencyKey(ctx context.Context, templateID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (template_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (template_id, idempotency_key) DO NOTHING
	`, templateID, key)
	if err != nil {
		return "", err
	}

	var bookingID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE template_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, templateID, key).Scan(&bookingID)
	return bookingID, err
}

func (t *Tx) SaveIdempotencyKey(ctx context.Context, templateID, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE template_id = $1 AND idempotency_key = $2
	`, templateID, key, bookingID)
	return err
}

func (t *Tx) CountConfirmed(ctx context.Context, templateID string, userIDs []string) (map[string]int, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT assigned_user_id::text, count(*)
		FROM bookings
		WHERE template_id = $1
			AND status = 'confirmed'
			AND assigned_user_id = ANY($2::uuid[])
		GROUP BY assigned_user_id
	`, templateID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, len(userIDs))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (t *Tx) InsertBooking(ctx context.Context, b *model.Booking) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, template_id, assigned_user_id, guest_name, guest_email, guest_timezone, guest_notes,
			 start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, b.ID, b.TemplateID, b.AssignedUserID, b.GuestName, b.GuestEmail, b.GuestTimezone, b.GuestNotes,
		b.StartTime, b.EndTime, string(b.Status)).Scan(&b.CreatedAt)
	if IsConflict(err) {
		return model.ErrSlotUnavailable
	}
	return err
}

func (t *Tx) GetBookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	if !validID(bookingID) {
		return model.Booking{}, model.ErrNotFound
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1::uuid
		FOR UPDATE
	`, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	return oneBooking(rows)
}

func (t *Tx) CancelBooking(ctx context.Context, bookingID, reason string) (time.Time, error) {
	if !validID(bookingID) {
		return time.Time{}, model.ErrNotFound
	}
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($2, ''),
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING cancelled_at
	`, bookingID, reason).Scan(&cancelledAt)
	return cancelledAt, notFound(err)
}

func (t *Tx) AddEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *Tx) Commit(ctx context.Context) error {
	err := t.tx.Commit(ctx)
	if IsConflict(err) {
		return model.ErrSlotUnavailable
	}
	return err
}

// Rollback is safe after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
