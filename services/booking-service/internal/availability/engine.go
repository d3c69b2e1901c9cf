package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// Store reads the inputs of one computation.
type Store interface {
	LoadTemplate(ctx context.Context, templateID string) (model.EventTemplate, error)
	// LoadDefaultSchedule returns model.ErrNotFound when the user has no default schedule.
	LoadDefaultSchedule(ctx context.Context, userID string) (model.Schedule, error)
	LoadOverrides(ctx context.Context, userID string, from, to tz.Date) ([]model.DateOverride, error)
	LoadConfirmedBookings(ctx context.Context, templateID string, start, end time.Time) ([]model.Booking, error)
}

// BusyFetcher returns busy intervals for each participant. It never fails: a participant whose
// calendars could not be read is reported busy for the whole range.
type BusyFetcher interface {
	FetchBusyIntervals(ctx context.Context, userIDs []string, start, end time.Time) map[string][]interval.Interval
}

type Query struct {
	TemplateID    string
	Date          tz.Date
	GuestTimezone string
}

type Engine struct {
	store  Store
	busy   BusyFetcher
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, busy BusyFetcher, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		busy:   busy,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer("availability"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Slots answers an availability query. A missing or inactive template yields no slots and no error.
func (e *Engine) Slots(ctx context.Context, q Query) ([]model.Slot, error) {
	if q.TemplateID == "" {
		return nil, &model.ValidationError{Field: "template_id", Reason: "is required"}
	}
	if q.Date.IsZero() {
		return nil, &model.ValidationError{Field: "date", Reason: "is required"}
	}
	guest, err := tz.LoadZone(q.GuestTimezone)
	if err != nil {
		return nil, &model.ValidationError{Field: "timezone", Reason: err.Error()}
	}

	tpl, err := e.store.LoadTemplate(ctx, q.TemplateID)
	if errors.Is(err, model.ErrNotFound) {
		return []model.Slot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if !tpl.Active {
		return []model.Slot{}, nil
	}
	return e.SlotsForTemplate(ctx, tpl, q.Date, guest)
}

// SlotsForTemplate runs the full pipeline for an already loaded template.
func (e *Engine) SlotsForTemplate(ctx context.Context, tpl model.EventTemplate, date tz.Date, guest *time.Location) ([]model.Slot, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "availability.compute", trace.WithAttributes(
		attribute.String("template_id", tpl.ID),
		attribute.String("date", date.String()),
		attribute.String("scheduling_mode", string(tpl.Mode)),
	))
	defer span.End()

	now := e.now()
	guestStart := tz.StartOfDay(date, guest)
	guestEnd := tz.StartOfDay(date.AddDays(1), guest)
	queryStart := guestStart.Add(-24 * time.Hour)
	queryEnd := guestEnd.Add(24 * time.Hour)

	before := time.Duration(tpl.BufferBeforeMinutes) * time.Minute
	after := time.Duration(tpl.BufferAfterMinutes) * time.Minute
	bookings, err := e.store.LoadConfirmedBookings(ctx, tpl.ID, queryStart.Add(-after), queryEnd.Add(before))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	participants := tpl.Participants()
	windows := make([][]interval.Interval, len(participants))
	var busy map[string][]interval.Interval

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		busy = e.busy.FetchBusyIntervals(gctx, participants, queryStart, queryEnd)
		return nil
	})
	for i, userID := range participants {
		g.Go(func() error {
			w, err := e.participantWindows(gctx, userID, queryStart, queryEnd)
			if err != nil {
				return fmt.Errorf("participant %s: %w", userID, err)
			}
			windows[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	bounds := BoundsFor(tpl, now)
	duration := time.Duration(tpl.DurationMinutes) * time.Minute
	per := make([]Participant, len(participants))
	for i, userID := range participants {
		per[i] = Participant{
			UserID: userID,
			Slots: ParticipantSlots(ParticipantInput{
				Windows:  windows[i],
				Busy:     busy[userID],
				Bookings: BufferedBookings(BookingsFor(userID, tpl.Mode, bookings), before, after),
				Duration: duration,
				Bounds:   bounds,
			}),
		}
	}

	slots := OnGuestDate(Aggregate(tpl.Mode, per), date, guest)
	span.SetAttributes(attribute.Int("slot_count", len(slots)))
	metrics.ObserveAvailability(string(tpl.Mode), time.Since(started).Seconds(), len(slots))
	e.logger.Debug("availability computed",
		"template_id", tpl.ID,
		"date", date.String(),
		"participants", len(participants),
		"slots", len(slots),
	)
	return slots, nil
}

func (e *Engine) participantWindows(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	sched, err := e.store.LoadDefaultSchedule(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	loc, err := tz.LoadZone(sched.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", sched.ID, err)
	}

	first := tz.CalendarDate(start, loc)
	last := tz.CalendarDate(end.Add(-time.Nanosecond), loc)
	overrides, err := e.store.LoadOverrides(ctx, userID, first, last)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	return BuildWindowsForDates(sched.Rules, overrides, tz.DatesBetween(first, last), loc), nil
}
