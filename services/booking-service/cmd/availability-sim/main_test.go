package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

var simNow = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *simEnv {
	t.Helper()
	st, err := loadFixture(filepath.Join("testdata", "team.yaml"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return buildEnv(st, func() time.Time { return simNow }, logger)
}

func slotsFor(t *testing.T, env *simEnv, date string) []slotOut {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, env.printSlots(context.Background(), &buf, availability.Query{
		TemplateID:    "team-intro",
		Date:          tz.MustParseDate(date),
		GuestTimezone: "Asia/Tokyo",
	}))
	var out struct {
		Slots []slotOut `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out.Slots
}

func TestSimSlots(t *testing.T) {
	env := newTestEnv(t)
	slots := slotsFor(t, env, "2026-10-19")

	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []string{
		"2026-10-19T09:30:00+09:00",
		"2026-10-19T10:00:00+09:00",
		"2026-10-19T10:30:00+09:00",
		"2026-10-19T11:00:00+09:00",
		"2026-10-19T11:30:00+09:00",
	}, starts)
	assert.Equal(t, []string{"p1"}, slots[0].Eligible)
	assert.Equal(t, []string{"p1", "p2"}, slots[1].Eligible)

	// p1 is blocked the following Monday, so only p2's hours remain.
	next := slotsFor(t, env, "2026-10-26")
	require.Len(t, next, 6)
	assert.Equal(t, "2026-10-26T10:00:00+09:00", next[0].Start)
	assert.Equal(t, []string{"p2"}, next[0].Eligible)
}

func TestSimBookAssignsLeastLoaded(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	req := booking.Request{
		TemplateID:    "team-intro",
		StartTime:     time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC),
		GuestName:     "Guest",
		GuestEmail:    "guest@example.com",
		GuestTimezone: "Asia/Tokyo",
	}
	require.NoError(t, env.book(context.Background(), &buf, req, "k-1"))

	var out bookingOut
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "p2", out.AssignedUserID)
	assert.Equal(t, string(model.StatusConfirmed), out.Status)
	assert.False(t, out.Replayed)
	assert.Equal(t, []string{booking.EventConfirmed}, out.Events)

	buf.Reset()
	require.NoError(t, env.book(context.Background(), &buf, req, "k-1"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, out.Replayed)

	err := env.book(context.Background(), io.Discard, booking.Request{
		TemplateID:    "team-intro",
		StartTime:     time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC),
		GuestName:     "Late",
		GuestEmail:    "late@example.com",
		GuestTimezone: "Asia/Tokyo",
	}, "")
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)
}

func TestLoadFixtureRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"mode":     "templates:\n  - {id: t, owner: p1, mode: round_robin}\n",
		"weekday":  "schedules:\n  - {user: p1, rules: [{day: funday, start: \"09:00\", end: \"10:00\"}]}\n",
		"window":   "schedules:\n  - {user: p1, rules: [{day: monday, start: \"10:00\", end: \"09:00\"}]}\n",
		"timezone": "schedules:\n  - {user: p1, timezone: Mars/Base}\n",
		"override": "overrides:\n  - {user: p1, date: \"2026-10-19\", start: \"10:00\"}\n",
		"busy":     "busy:\n  - {user: p1, start: \"2026-10-19T03:00:00Z\", end: \"2026-10-19T02:00:00Z\"}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := loadFixture(path)
			assert.Error(t, err)
		})
	}
}
