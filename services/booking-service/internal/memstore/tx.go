package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

type cancellation struct {
	id     string
	reason string
	at     time.Time
}

// tx stages writes and applies them on Commit. Locks are held until Commit or Rollback.
type tx struct {
	s       *Store
	held    []chan struct{}
	inserts []model.Booking
	cancels []cancellation
	events  []outbox.Event
	idem    map[string]string
	done    bool
}

func (t *tx) lock(ctx context.Context, key string) error {
	ch := t.s.lockChan(key)
	for _, h := range t.held {
		if h == ch {
			return nil
		}
	}
	select {
	case ch <- struct{}{}:
		t.held = append(t.held, ch)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) release() {
	for _, ch := range t.held {
		<-ch
	}
	t.held = nil
	t.done = true
}

func (t *tx) LockParticipants(ctx context.Context, userIDs []string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		if err := t.lock(ctx, "participant:"+id); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) LockIdempotencyKey(ctx context.Context, templateID, key string) (string, error) {
	if err := t.lock(ctx, "idem:"+templateID+"\x00"+key); err != nil {
		return "", err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.idem[templateID+"\x00"+key], nil
}

func (t *tx) SaveIdempotencyKey(_ context.Context, templateID, key, bookingID string) error {
	if t.idem == nil {
		t.idem = map[string]string{}
	}
	t.idem[templateID+"\x00"+key] = bookingID
	return nil
}

func (t *tx) CountConfirmed(_ context.Context, templateID string, userIDs []string) (map[string]int, error) {
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	counts := map[string]int{}
	for _, b := range t.s.bookings {
		if b.TemplateID == templateID && b.Status == model.StatusConfirmed && want[b.AssignedUserID] {
			counts[b.AssignedUserID]++
		}
	}
	return counts, nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if overlapsConfirmed(t.s.bookings, *b) || overlapsConfirmed(t.inserts, *b) {
		return model.ErrSlotUnavailable
	}
	b.CreatedAt = t.s.now().UTC()
	t.inserts = append(t.inserts, *b)
	return nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	if err := t.lock(ctx, "booking:"+bookingID); err != nil {
		return model.Booking{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if i := t.s.indexOf(bookingID); i >= 0 {
		return t.s.bookings[i], nil
	}
	return model.Booking{}, model.ErrNotFound
}

func (t *tx) CancelBooking(_ context.Context, bookingID, reason string) (time.Time, error) {
	t.s.mu.Lock()
	at := t.s.now().UTC()
	t.s.mu.Unlock()
	t.cancels = append(t.cancels, cancellation{id: bookingID, reason: reason, at: at})
	return at, nil
}

func (t *tx) AddEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

// Commit re-checks overlaps against bookings committed meanwhile, as the database constraint would.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	defer t.release()
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, b := range t.inserts {
		if overlapsConfirmed(t.s.bookings, b) {
			return model.ErrSlotUnavailable
		}
	}
	t.s.bookings = append(t.s.bookings, t.inserts...)
	for _, c := range t.cancels {
		if i := t.s.indexOf(c.id); i >= 0 {
			at := c.at
			t.s.bookings[i].Status = model.StatusCancelled
			t.s.bookings[i].CancelledAt = &at
			t.s.bookings[i].CancellationReason = c.reason
		}
	}
	t.s.events = append(t.s.events, t.events...)
	for k, v := range t.idem {
		t.s.idem[k] = v
	}
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}
