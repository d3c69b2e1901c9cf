// Package booking is the write path: re-validation, assignment, persistence and meeting setup.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/assignment"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/ics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

const (
	EventConfirmed = "booking.confirmed.v1"
	EventCancelled = "booking.cancelled.v1"

	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Meetings arranges and releases the external meeting of a booking.
type Meetings interface {
	Arrange(ctx context.Context, req meeting.Request) (meeting.Meeting, error)
	Release(ctx context.Context, organizerID string, platform model.MeetingPlatform, m meeting.Meeting) error
}

type Request struct {
	TemplateID    string
	StartTime     time.Time
	GuestName     string
	GuestEmail    string
	GuestTimezone string
	GuestNotes    string
}

type Service struct {
	store    Store
	gate     Gate
	meetings Meetings
	logger   *slog.Logger
	now      func() time.Time
	// writes bounds concurrent Book transactions. Each one holds a pooled connection while it waits on
	// participant locks, and the lock holder needs further connections for its re-check.
	writes *semaphore.Weighted
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxConcurrentBookings caps the number of Book calls that hold a transaction at once. Keep it below
// the pool size so the lock holder can always get a connection. n <= 0 means no cap.
func WithMaxConcurrentBookings(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.writes = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewService accepts a nil Meetings; bookings are then created without a meeting.
func NewService(store Store, gate Gate, meetings Meetings, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, gate: gate, meetings: meetings, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates a confirmed booking for the requested instant. With a non-empty idempotencyKey a repeated
// request returns the booking of the first one and replayed is true.
func (s *Service) Book(ctx context.Context, req Request, idempotencyKey string) (b model.Booking, replayed bool, err error) {
	defer func() { metrics.IncBooking(bookResult(err)) }()

	guest, err := validate(&req)
	if err != nil {
		return model.Booking{}, false, err
	}

	tpl, err := s.store.LoadTemplate(ctx, req.TemplateID)
	if err != nil {
		return model.Booking{}, false, err
	}
	if !tpl.Active {
		return model.Booking{}, false, model.ErrNotFound
	}

	release, err := s.acquireWriteSlot(ctx)
	if err != nil {
		return model.Booking{}, false, err
	}
	defer release()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idempotencyKey != "" {
		prior, err := tx.LockIdempotencyKey(ctx, tpl.ID, idempotencyKey)
		if err != nil {
			return model.Booking{}, false, fmt.Errorf("idempotency key: %w", err)
		}
		if prior != "" {
			_ = tx.Rollback(ctx)
			b, err := s.store.GetBooking(ctx, prior)
			return b, err == nil, err
		}
	}

	if err := tx.LockParticipants(ctx, tpl.Participants()); err != nil {
		return model.Booking{}, false, fmt.Errorf("lock participants: %w", err)
	}

	slot, err := s.revalidate(ctx, tpl, req.StartTime, guest)
	if err != nil {
		return model.Booking{}, false, err
	}

	assignee, err := assignment.Select(ctx, tx, tpl.ID, slot.Eligible)
	if err != nil {
		s.logger.Error("assignment failed", "template_id", tpl.ID, "start", req.StartTime, "err", err)
		return model.Booking{}, false, err
	}

	b = model.Booking{
		ID:             uuid.NewString(),
		TemplateID:     tpl.ID,
		AssignedUserID: assignee,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		GuestTimezone:  req.GuestTimezone,
		GuestNotes:     req.GuestNotes,
		StartTime:      req.StartTime,
		EndTime:        req.StartTime.Add(time.Duration(tpl.DurationMinutes) * time.Minute),
		Status:         model.StatusConfirmed,
	}
	if err := tx.InsertBooking(ctx, &b); err != nil {
		return model.Booking{}, false, err
	}

	payload, err := json.Marshal(confirmedPayload(b))
	if err != nil {
		return model.Booking{}, false, err
	}
	if err := tx.AddEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventConfirmed,
		Payload:       payload,
	}); err != nil {
		return model.Booking{}, false, fmt.Errorf("outbox: %w", err)
	}
	if idempotencyKey != "" {
		if err := tx.SaveIdempotencyKey(ctx, tpl.ID, idempotencyKey, b.ID); err != nil {
			return model.Booking{}, false, fmt.Errorf("idempotency key: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, false, fmt.Errorf("commit: %w", err)
	}
	release()

	s.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"template_id", tpl.ID,
		"assigned_user_id", assignee,
		"start", b.StartTime,
	)
	s.arrangeMeeting(ctx, tpl, &b)
	return b, false, nil
}

// acquireWriteSlot waits for a free write slot. The returned release is safe to call more than once.
func (s *Service) acquireWriteSlot(ctx context.Context) (func(), error) {
	if s.writes == nil {
		return func() {}, nil
	}
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for write slot: %w", err)
	}
	var once sync.Once
	return func() { once.Do(func() { s.writes.Release(1) }) }, nil
}

// revalidate runs the engine for the guest-local date of start and returns the slot starting exactly then.
func (s *Service) revalidate(ctx context.Context, tpl model.EventTemplate, start time.Time, guest *time.Location) (model.Slot, error) {
	date := tz.CalendarDate(start, guest)
	slots, err := s.gate.SlotsForTemplate(ctx, tpl, date, guest)
	if err != nil {
		return model.Slot{}, fmt.Errorf("recompute slots: %w", err)
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return slot, nil
		}
	}
	return model.Slot{}, model.ErrSlotUnavailable
}

func (s *Service) arrangeMeeting(ctx context.Context, tpl model.EventTemplate, b *model.Booking) {
	if s.meetings == nil {
		return
	}
	description := []string{
		"Meeting: " + tpl.Title,
		fmt.Sprintf("Guest: %s (%s)", b.GuestName, b.GuestEmail),
	}
	if b.GuestNotes != "" {
		description = append(description, "Notes: "+b.GuestNotes)
	}

	m, err := s.meetings.Arrange(ctx, meeting.Request{
		Platform:       tpl.Platform,
		OrganizerID:    b.AssignedUserID,
		Title:          tpl.Title + " - " + b.GuestName,
		Description:    strings.Join(description, "\n"),
		Location:       tpl.Location,
		Start:          b.StartTime,
		End:            b.EndTime,
		AttendeeEmails: []string{b.GuestEmail},
	})
	if err != nil {
		s.logger.Warn("meeting setup incomplete", "booking_id", b.ID, "platform", tpl.Platform, "err", err)
	}
	if m == (meeting.Meeting{}) {
		return
	}
	if err := s.store.AttachMeeting(ctx, b.ID, m.URL, m.ID, m.CalendarEventID); err != nil {
		s.logger.Error("attach meeting failed", "booking_id", b.ID, "err", err)
		return
	}
	b.MeetingURL, b.MeetingID, b.CalendarEventID = m.URL, m.ID, m.CalendarEventID
}

// Cancel moves a confirmed booking to cancelled and tears down its meeting. Teardown errors are logged only.
func (s *Service) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, &model.ValidationError{Field: "booking_id", Reason: "is required"}
	}
	if len(reason) > 1000 {
		return model.Booking{}, &model.ValidationError{Field: "reason", Reason: "must be at most 1000 characters"}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.GetBookingForUpdate(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.StatusConfirmed {
		return model.Booking{}, model.ErrAlreadyCancelled
	}
	cancelledAt, err := tx.CancelBooking(ctx, bookingID, reason)
	if err != nil {
		return model.Booking{}, fmt.Errorf("cancel: %w", err)
	}
	b.Status = model.StatusCancelled
	b.CancelledAt = &cancelledAt
	b.CancellationReason = reason

	payload, err := json.Marshal(cancelledPayload(b))
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.AddEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventCancelled,
		Payload:       payload,
	}); err != nil {
		return model.Booking{}, fmt.Errorf("outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, fmt.Errorf("commit: %w", err)
	}
	metrics.IncBookingCancelled()
	s.logger.Info("booking cancelled", "booking_id", b.ID)

	if s.meetings != nil && (b.CalendarEventID != "" || b.MeetingID != "") {
		platform := model.PlatformNone
		if tpl, err := s.store.LoadTemplate(ctx, b.TemplateID); err == nil {
			platform = tpl.Platform
		}
		m := meeting.Meeting{URL: b.MeetingURL, ID: b.MeetingID, CalendarEventID: b.CalendarEventID}
		if err := s.meetings.Release(ctx, b.AssignedUserID, platform, m); err != nil {
			s.logger.Warn("meeting teardown failed", "booking_id", b.ID, "err", err)
		}
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// List returns the template's bookings, newest first. A zero limit means DefaultListLimit.
func (s *Service) List(ctx context.Context, templateID string, limit int) ([]model.Booking, error) {
	if templateID == "" {
		return nil, &model.ValidationError{Field: "template_id", Reason: "is required"}
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, &model.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxListLimit)}
	}
	return s.store.ListBookings(ctx, templateID, limit)
}

// Calendar gathers what the ICS export of a booking needs.
func (s *Service) Calendar(ctx context.Context, bookingID string) (ics.Input, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return ics.Input{}, err
	}
	in := ics.Input{Booking: b, Now: s.now()}
	if tpl, err := s.store.LoadTemplate(ctx, b.TemplateID); err == nil {
		in.TemplateTitle = tpl.Title
		in.Location = tpl.Location
	} else if !errors.Is(err, model.ErrNotFound) {
		return ics.Input{}, err
	}
	if b.AssignedUserID != "" {
		u, err := s.store.LoadUser(ctx, b.AssignedUserID)
		switch {
		case err == nil:
			in.Organizer = u
		case !errors.Is(err, model.ErrNotFound):
			return ics.Input{}, err
		}
	}
	return in, nil
}

func validate(req *Request) (*time.Location, error) {
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.GuestEmail = strings.TrimSpace(req.GuestEmail)
	req.GuestNotes = strings.TrimSpace(req.GuestNotes)

	if req.TemplateID == "" {
		return nil, &model.ValidationError{Field: "templateId", Reason: "is required"}
	}
	if req.StartTime.IsZero() {
		return nil, &model.ValidationError{Field: "startTime", Reason: "is required"}
	}
	if n := len([]rune(req.GuestName)); n < 1 || n > 255 {
		return nil, &model.ValidationError{Field: "guestName", Reason: "must be 1 to 255 characters"}
	}
	if len(req.GuestEmail) > 320 {
		return nil, &model.ValidationError{Field: "guestEmail", Reason: "must be at most 320 characters"}
	}
	if addr, err := mail.ParseAddress(req.GuestEmail); err != nil || addr.Address != req.GuestEmail {
		return nil, &model.ValidationError{Field: "guestEmail", Reason: "is not a valid address"}
	}
	if len([]rune(req.GuestNotes)) > 1000 {
		return nil, &model.ValidationError{Field: "guestNotes", Reason: "must be at most 1000 characters"}
	}
	guest, err := tz.LoadZone(req.GuestTimezone)
	if err != nil {
		return nil, &model.ValidationError{Field: "guestTimezone", Reason: err.Error()}
	}
	req.StartTime = req.StartTime.UTC()
	return guest, nil
}

func bookResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, model.ErrSlotUnavailable):
		return "conflict"
	case model.IsValidation(err), errors.Is(err, model.ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}

type bookingEvent struct {
	BookingID      string     `json:"booking_id"`
	TemplateID     string     `json:"template_id"`
	AssignedUserID string     `json:"assigned_user_id"`
	GuestName      string     `json:"guest_name"`
	GuestEmail     string     `json:"guest_email"`
	GuestTimezone  string     `json:"guest_timezone"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

func confirmedPayload(b model.Booking) bookingEvent {
	return bookingEvent{
		BookingID:      b.ID,
		TemplateID:     b.TemplateID,
		AssignedUserID: b.AssignedUserID,
		GuestName:      b.GuestName,
		GuestEmail:     b.GuestEmail,
		GuestTimezone:  b.GuestTimezone,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         string(b.Status),
	}
}

func cancelledPayload(b model.Booking) bookingEvent {
	evt := confirmedPayload(b)
	evt.CancelledAt = b.CancelledAt
	evt.Reason = b.CancellationReason
	return evt
}
