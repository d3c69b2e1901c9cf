package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

func newTestMux(t *testing.T) (*http.ServeMux, *memstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }

	store := memstore.New()
	store.SetClock(now)
	store.PutUser(model.User{ID: "u1", Name: "Host", Email: "host@example.com"})
	store.PutTemplate(model.EventTemplate{
		ID:               "tpl",
		OwnerID:          "u1",
		Title:            "Intro call",
		DurationMinutes:  30,
		MinNoticeMinutes: 60,
		MaxAdvanceDays:   60,
		Mode:             model.ModeAnyAvailable,
		Platform:         model.PlatformNone,
		Active:           true,
	})
	nine, _ := tz.ParseClock("09:00")
	five, _ := tz.ParseClock("17:00")
	store.PutSchedule(model.Schedule{
		UserID:   "u1",
		Timezone: "Asia/Tokyo",
		Rules:    []model.WeeklyRule{{Day: tz.Monday, Start: nine, End: five}},
	})

	engine := availability.NewEngine(store, busy.NewFetcher(store, time.Second, logger), logger, availability.WithClock(now))
	svc := booking.NewService(store, engine, nil, logger, booking.WithClock(now))

	mux := http.NewServeMux()
	Register(mux,
		NewAvailabilityHandler(engine, "", logger),
		NewBookingHandler(svc, logger),
		NewScheduleHandler(store, logger),
	)
	return mux, store
}

func do(mux http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// 10:00 JST on Monday 2026-10-19.
const tenJST = "2026-10-19T01:00:00Z"

const createBody = `{"templateId":"tpl","startTime":"` + tenJST + `","guestName":"Ada","guestEmail":"ada@example.com","guestTimezone":"Asia/Tokyo"}`

func TestAvailabilityEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodGet, "/api/v1/availability?template_id=tpl&date=2026-10-19&timezone=Asia/Tokyo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[availabilityResponse](t, rec)
	assert.Equal(t, "2026-10-19", resp.Date)
	assert.Equal(t, "Asia/Tokyo", resp.Timezone)
	require.Len(t, resp.Slots, 16)
	assert.Equal(t, "2026-10-19T00:00:00Z", resp.Slots[0].StartTime)
	assert.Equal(t, []string{"u1"}, resp.Slots[0].EligibleParticipantIDs)

	rec = do(mux, http.MethodGet, "/api/v1/availability?template_id=tpl&date=2026-10-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DefaultScheduleTimezone, decode[availabilityResponse](t, rec).Timezone)

	rec = do(mux, http.MethodGet, "/api/v1/availability?template_id=missing&date=2026-10-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[availabilityResponse](t, rec).Slots)
}

func TestAvailabilityRejectsBadInput(t *testing.T) {
	mux, _ := newTestMux(t)
	for _, target := range []string{
		"/api/v1/availability?date=2026-10-19",
		"/api/v1/availability?template_id=tpl&date=19-10-2026",
		"/api/v1/availability?template_id=tpl&date=2026-10-19&timezone=Nowhere/City",
	} {
		rec := do(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCreateBooking(t *testing.T) {
	mux, store := newTestMux(t)

	rec := do(mux, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[bookingResponse](t, rec)
	assert.Equal(t, "u1", b.AssignedUserID)
	assert.Equal(t, tenJST, b.StartTime)
	assert.Equal(t, "2026-10-19T01:30:00Z", b.EndTime)
	assert.Equal(t, "confirmed", b.Status)
	assert.Len(t, store.Events(), 1)

	rec = do(mux, http.MethodPost, "/api/v1/bookings", createBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateBookingErrors(t *testing.T) {
	mux, _ := newTestMux(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"templateId":`, http.StatusBadRequest},
		{"unknown field", `{"templateId":"tpl","extra":1}`, http.StatusBadRequest},
		{"bad start", `{"templateId":"tpl","startTime":"tomorrow"}`, http.StatusBadRequest},
		{"bad email", strings.Replace(createBody, "ada@example.com", "nope", 1), http.StatusBadRequest},
		{"missing template", strings.Replace(createBody, `"tpl"`, `"other"`, 1), http.StatusNotFound},
		{"off grid", strings.Replace(createBody, "01:00:00Z", "01:10:00Z", 1), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/api/v1/bookings", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(mux, http.MethodPost, "/api/v1/bookings", strings.Replace(createBody, "ada@example.com", "nope", 1))
	assert.Equal(t, "guestEmail", decode[errorBody](t, rec).Field)
}

func TestCreateBookingReplay(t *testing.T) {
	mux, _ := newTestMux(t)

	first := do(mux, http.MethodPost, "/api/v1/bookings", createBody, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotency-Replayed"))

	second := do(mux, http.MethodPost, "/api/v1/bookings", createBody, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replayed"))
	assert.Equal(t, decode[bookingResponse](t, first).ID, decode[bookingResponse](t, second).ID)

	long := do(mux, http.MethodPost, "/api/v1/bookings", createBody, "Idempotency-Key", strings.Repeat("k", maxIdempotencyKeyLen+1))
	assert.Equal(t, http.StatusBadRequest, long.Code)
}

func TestBookingLifecycle(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[bookingResponse](t, rec).ID

	rec = do(mux, http.MethodGet, "/api/v1/bookings/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[bookingResponse](t, rec).ID)

	rec = do(mux, http.MethodGet, "/api/v1/bookings?template_id=tpl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []bookingResponse `json:"items"`
	}](t, rec)
	assert.Len(t, list.Items, 1)

	rec = do(mux, http.MethodGet, "/api/v1/bookings/"+id+"/ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Contains(t, rec.Body.String(), "Intro call - Ada")

	rec = do(mux, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", `{"reason":"conflict"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[bookingResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "conflict", cancelled.CancellationReason)
	assert.NotEmpty(t, cancelled.CancelledAt)

	rec = do(mux, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingNotFound(t *testing.T) {
	mux, _ := newTestMux(t)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/bookings/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodPost, "/api/v1/bookings/nope/cancel", "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/bookings/nope/ics", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/v1/bookings?template_id=tpl&limit=x", "").Code)
}

func TestScheduleEndpoints(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodPut, "/api/v1/users/u1/schedule",
		`{"timezone":"Europe/Berlin","rules":[{"dayOfWeek":"Tuesday","startTime":"08:00","endTime":"12:00"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sched := decode[scheduleResponse](t, rec)
	assert.Equal(t, "Europe/Berlin", sched.Timezone)
	require.Len(t, sched.Rules, 1)
	assert.Equal(t, "tuesday", sched.Rules[0].DayOfWeek)

	rec = do(mux, http.MethodGet, "/api/v1/users/u1/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sched.ID, decode[scheduleResponse](t, rec).ID)

	rec = do(mux, http.MethodPut, "/api/v1/users/u1/schedule",
		`{"rules":[{"dayOfWeek":"monday","startTime":"12:00","endTime":"09:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPut, "/api/v1/users/u1/schedule",
		`{"rules":[{"dayOfWeek":"someday","startTime":"09:00","endTime":"12:00"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "dayOfWeek", decode[errorBody](t, rec).Field)

	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/users/nobody/schedule", "").Code)
}

func TestOverrideEndpoints(t *testing.T) {
	mux, _ := newTestMux(t)
	slots := func() int {
		rec := do(mux, http.MethodGet, "/api/v1/availability?template_id=tpl&date=2026-10-19&timezone=Asia/Tokyo", "")
		require.Equal(t, http.StatusOK, rec.Code)
		return len(decode[availabilityResponse](t, rec).Slots)
	}
	require.Equal(t, 16, slots())

	rec := do(mux, http.MethodPost, "/api/v1/users/u1/overrides", `{"date":"2026-10-19","startTime":"13:00","endTime":"14:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[overrideResponse](t, rec)
	assert.Equal(t, "13:00", o.StartTime)
	assert.Equal(t, 2, slots())

	rec = do(mux, http.MethodPost, "/api/v1/users/u1/overrides", `{"date":"2026-10-19","isBlocked":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, slots())

	rec = do(mux, http.MethodDelete, "/api/v1/users/u1/overrides/2026-10-19", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 16, slots())

	rec = do(mux, http.MethodDelete, "/api/v1/users/u1/overrides/2026-10-19", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/api/v1/users/u1/overrides", `{"date":"2026-10-19","startTime":"13:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
