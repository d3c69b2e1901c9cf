package availability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// 2026-10-19 is a Monday.
const monday = "2026-10-19"

var tokyo = tz.MustLoadZone("Asia/Tokyo")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jst(hhmm string) time.Time {
	c, err := tz.ParseClock(hhmm)
	if err != nil {
		panic(err)
	}
	return tz.LocalToInstant(tz.MustParseDate(monday), c, tokyo)
}

func rule(day tz.Weekday, start, end string) model.WeeklyRule {
	s, _ := tz.ParseClock(start)
	e, _ := tz.ParseClock(end)
	return model.WeeklyRule{Day: day, Start: s, End: e}
}

func weekdays(start, end string) []model.WeeklyRule {
	var out []model.WeeklyRule
	for _, d := range []tz.Weekday{tz.Monday, tz.Tuesday, tz.Wednesday, tz.Thursday, tz.Friday} {
		out = append(out, rule(d, start, end))
	}
	return out
}

func template(mode model.SchedulingMode, owner string, members ...string) model.EventTemplate {
	return model.EventTemplate{
		ID:               "tpl",
		OwnerID:          owner,
		Title:            "Intro call",
		DurationMinutes:  30,
		MinNoticeMinutes: 60,
		MaxAdvanceDays:   60,
		Mode:             mode,
		Platform:         model.PlatformNone,
		Active:           true,
		MemberIDs:        members,
	}
}

type fixture struct {
	store *memstore.Store
	now   time.Time
}

func newFixture() *fixture {
	return &fixture{store: memstore.New(), now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) engine(source busy.Source) *availability.Engine {
	if source == nil {
		source = f.store
	}
	fetcher := busy.NewFetcher(source, time.Second, quietLogger())
	return availability.NewEngine(f.store, fetcher, quietLogger(), availability.WithClock(func() time.Time { return f.now }))
}

func (f *fixture) slots(t *testing.T, e *availability.Engine, zone string) []model.Slot {
	t.Helper()
	got, err := e.Slots(context.Background(), availability.Query{
		TemplateID:    "tpl",
		Date:          tz.MustParseDate(monday),
		GuestTimezone: zone,
	})
	require.NoError(t, err)
	return got
}

func starts(slots []model.Slot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}

func TestSingleParticipantFullDay(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})

	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.Len(t, got, 16)
	assert.Equal(t, jst("09:00"), got[0].Start)
	assert.Equal(t, jst("16:30"), got[15].Start)
	assert.Equal(t, jst("17:00"), got[15].End)
	for _, s := range got {
		assert.Equal(t, []string{"p1"}, s.Eligible)
	}
}

func TestBookingWithBuffersRemovesNeighbours(t *testing.T) {
	f := newFixture()
	tpl := template(model.ModeAnyAvailable, "p1")
	tpl.BufferBeforeMinutes = 10
	tpl.BufferAfterMinutes = 10
	f.store.PutTemplate(tpl)
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
	f.store.PutBooking(model.Booking{TemplateID: "tpl", AssignedUserID: "p1", StartTime: jst("10:00"), EndTime: jst("10:30")})

	got := starts(f.slots(t, f.engine(nil), "Asia/Tokyo"))
	assert.Len(t, got, 13)
	assert.NotContains(t, got, jst("09:30"))
	assert.NotContains(t, got, jst("10:00"))
	assert.NotContains(t, got, jst("10:30"))
	assert.Contains(t, got, jst("09:00"))
	assert.Contains(t, got, jst("11:00"))
}

func TestCancelledBookingDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
	f.store.PutBooking(model.Booking{TemplateID: "tpl", AssignedUserID: "p1", StartTime: jst("10:00"), EndTime: jst("10:30"), Status: model.StatusCancelled})

	assert.Len(t, f.slots(t, f.engine(nil), "Asia/Tokyo"), 16)
}

func twoParticipants(mode model.SchedulingMode) *fixture {
	f := newFixture()
	f.store.PutTemplate(template(mode, "p1", "p2"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: []model.WeeklyRule{rule(tz.Monday, "09:00", "12:00")}})
	f.store.PutSchedule(model.Schedule{UserID: "p2", Timezone: "Asia/Tokyo", Rules: []model.WeeklyRule{rule(tz.Monday, "11:00", "14:00")}})
	return f
}

func TestAnyAvailableUnion(t *testing.T) {
	f := twoParticipants(model.ModeAnyAvailable)
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.Len(t, got, 10)
	assert.Equal(t, jst("09:00"), got[0].Start)
	assert.Equal(t, jst("14:00"), got[9].End)

	for _, s := range got {
		switch {
		case s.Start.Before(jst("11:00")):
			assert.Equal(t, []string{"p1"}, s.Eligible, s.Start)
		case s.Start.Before(jst("12:00")):
			assert.Equal(t, []string{"p1", "p2"}, s.Eligible, s.Start)
		default:
			assert.Equal(t, []string{"p2"}, s.Eligible, s.Start)
		}
	}
}

func TestAllAvailableIntersection(t *testing.T) {
	f := twoParticipants(model.ModeAllAvailable)
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.Len(t, got, 2)
	assert.Equal(t, []time.Time{jst("11:00"), jst("11:30")}, starts(got))
	for _, s := range got {
		assert.Equal(t, []string{"p1", "p2"}, s.Eligible)
	}
}

func TestAllAvailableCountsEveryBookingOfTemplate(t *testing.T) {
	f := twoParticipants(model.ModeAllAvailable)
	f.store.PutBooking(model.Booking{TemplateID: "tpl", AssignedUserID: "p1", StartTime: jst("11:00"), EndTime: jst("11:30")})
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	assert.Equal(t, []time.Time{jst("11:30")}, starts(got))
}

func TestSpecificPersonUsesOwnerOnly(t *testing.T) {
	f := twoParticipants(model.ModeSpecificPerson)
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.Len(t, got, 6)
	assert.Equal(t, jst("11:30"), got[5].Start)
}

func TestMinNoticeBoundary(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})

	f.now = jst("08:00")
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.NotEmpty(t, got)
	assert.Equal(t, jst("09:00"), got[0].Start)

	f.now = jst("08:01")
	got = f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.NotEmpty(t, got)
	assert.Equal(t, jst("09:30"), got[0].Start)
}

func TestMaxAdvance(t *testing.T) {
	f := newFixture()
	tpl := template(model.ModeAnyAvailable, "p1")
	tpl.MaxAdvanceDays = 1
	f.store.PutTemplate(tpl)
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})

	f.now = jst("12:00").Add(-24 * time.Hour)
	got := starts(f.slots(t, f.engine(nil), "Asia/Tokyo"))
	require.NotEmpty(t, got)
	assert.Equal(t, jst("12:00"), got[len(got)-1])
}

func TestQueryIsIdempotent(t *testing.T) {
	f := twoParticipants(model.ModeAnyAvailable)
	e := f.engine(nil)
	assert.Equal(t, f.slots(t, e, "Asia/Tokyo"), f.slots(t, e, "Asia/Tokyo"))
}

func TestGuestDateSpansTwoScheduleDays(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})

	got := f.slots(t, f.engine(nil), "America/New_York")
	require.Len(t, got, 16)
	ny := tz.MustLoadZone("America/New_York")
	for _, s := range got {
		assert.Equal(t, monday, tz.CalendarDate(s.Start, ny).String())
	}
	// Monday 13:00 JST is midnight in New York; Tuesday 09:00 JST is 20:00 Monday.
	assert.Equal(t, jst("13:00"), got[0].Start)
	assert.Equal(t, jst("09:00").Add(24*time.Hour), got[8].Start)
}

func TestOverrides(t *testing.T) {
	d := tz.MustParseDate(monday)

	t.Run("blocked", func(t *testing.T) {
		f := newFixture()
		f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
		f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
		f.store.PutOverride(model.DateOverride{UserID: "p1", Date: d, Blocked: true})
		assert.Empty(t, f.slots(t, f.engine(nil), "Asia/Tokyo"))
	})
	t.Run("replacing window", func(t *testing.T) {
		f := newFixture()
		f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
		f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
		start, _ := tz.ParseClock("13:00")
		end, _ := tz.ParseClock("15:00")
		f.store.PutOverride(model.DateOverride{UserID: "p1", Date: d, Start: &start, End: &end})
		got := starts(f.slots(t, f.engine(nil), "Asia/Tokyo"))
		assert.Equal(t, []time.Time{jst("13:00"), jst("13:30"), jst("14:00"), jst("14:30")}, got)
	})
}

func TestExternalBusyIsSubtracted(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1"))
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
	f.store.PutBusy("p1", interval.Interval{Start: jst("12:15"), End: jst("13:00")})

	got := starts(f.slots(t, f.engine(nil), "Asia/Tokyo"))
	assert.Len(t, got, 14)
	assert.NotContains(t, got, jst("12:00"))
	assert.NotContains(t, got, jst("12:30"))
}

type brokenSource struct{ healthy busy.Source }

func (s brokenSource) Name() string { return "broken" }

func (s brokenSource) Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	if userID == "p1" {
		return nil, &busy.ProviderError{Provider: "google", Err: errors.New("invalid_grant")}
	}
	return s.healthy.Busy(ctx, userID, start, end)
}

func TestFailingProviderMakesParticipantBusy(t *testing.T) {
	f := twoParticipants(model.ModeAnyAvailable)
	got := f.slots(t, f.engine(brokenSource{healthy: f.store}), "Asia/Tokyo")
	require.Len(t, got, 6)
	for _, s := range got {
		assert.Equal(t, []string{"p2"}, s.Eligible)
	}
}

func TestMissingOrInactiveTemplateIsEmpty(t *testing.T) {
	f := newFixture()
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	assert.Empty(t, got)

	tpl := template(model.ModeAnyAvailable, "p1")
	tpl.Active = false
	f.store.PutTemplate(tpl)
	f.store.PutSchedule(model.Schedule{UserID: "p1", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "17:00")})
	assert.Empty(t, f.slots(t, f.engine(nil), "Asia/Tokyo"))
}

func TestParticipantWithoutScheduleHasNoSlots(t *testing.T) {
	f := newFixture()
	f.store.PutTemplate(template(model.ModeAnyAvailable, "p1", "p2"))
	f.store.PutSchedule(model.Schedule{UserID: "p2", Timezone: "Asia/Tokyo", Rules: weekdays("09:00", "10:00")})
	got := f.slots(t, f.engine(nil), "Asia/Tokyo")
	require.Len(t, got, 2)
	assert.Equal(t, []string{"p2"}, got[0].Eligible)
}

func TestQueryValidation(t *testing.T) {
	e := newFixture().engine(nil)
	ctx := context.Background()

	_, err := e.Slots(ctx, availability.Query{Date: tz.MustParseDate(monday), GuestTimezone: "UTC"})
	assert.True(t, model.IsValidation(err))

	_, err = e.Slots(ctx, availability.Query{TemplateID: "tpl", GuestTimezone: "UTC"})
	assert.True(t, model.IsValidation(err))

	_, err = e.Slots(ctx, availability.Query{TemplateID: "tpl", Date: tz.MustParseDate(monday), GuestTimezone: "Mars/Olympus"})
	assert.True(t, model.IsValidation(err))
}
