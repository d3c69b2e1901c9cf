package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/gcal"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var (
	start = time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	end   = start.Add(30 * time.Minute)
)

type fakeCalendar struct {
	inserted []CalendarEvent
	deleted  []string
	err      error
}

func (f *fakeCalendar) InsertEvent(_ context.Context, ev CalendarEvent) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.inserted = append(f.inserted, ev)
	conf := ""
	if ev.WithMeet {
		conf = "https://meet.google.com/abc-defg-hij"
	}
	return "evt-1", conf, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeZoom struct {
	created int
	deleted []string
	err     error
}

func (f *fakeZoom) CreateMeeting(context.Context, string, time.Time, time.Duration) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.created++
	return "987", "https://zoom.us/j/987", nil
}

func (f *fakeZoom) DeleteMeeting(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArrangeGoogleMeet(t *testing.T) {
	cal, zoom := &fakeCalendar{}, &fakeZoom{}
	svc := NewService(cal, zoom, quiet())

	m, err := svc.Arrange(context.Background(), Request{
		Platform: model.PlatformGoogleMeet, OrganizerID: "u1", Title: "Intro - Ann", Start: start, End: end,
		AttendeeEmails: []string{"ann@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, Meeting{URL: "https://meet.google.com/abc-defg-hij", CalendarEventID: "evt-1"}, m)
	assert.Equal(t, 0, zoom.created)
	require.Len(t, cal.inserted, 1)
	assert.True(t, cal.inserted[0].WithMeet)
}

func TestArrangeZoomPutsLinkOnEvent(t *testing.T) {
	cal, zoom := &fakeCalendar{}, &fakeZoom{}
	svc := NewService(cal, zoom, quiet())

	m, err := svc.Arrange(context.Background(), Request{
		Platform: model.PlatformZoom, OrganizerID: "u1", Title: "Intro", Description: "Guest: Ann",
		Start: start, End: end,
	})
	require.NoError(t, err)
	assert.Equal(t, Meeting{URL: "https://zoom.us/j/987", ID: "987", CalendarEventID: "evt-1"}, m)
	require.Len(t, cal.inserted, 1)
	assert.Equal(t, "https://zoom.us/j/987", cal.inserted[0].Location)
	assert.Equal(t, "Guest: Ann\nMeeting Link: https://zoom.us/j/987", cal.inserted[0].Description)
	assert.False(t, cal.inserted[0].WithMeet)
}

func TestArrangeKeepsPartialResult(t *testing.T) {
	cal := &fakeCalendar{err: errors.New("quota")}
	svc := NewService(cal, &fakeZoom{}, quiet())

	m, err := svc.Arrange(context.Background(), Request{Platform: model.PlatformZoom, Start: start, End: end})
	require.Error(t, err)
	assert.Equal(t, "987", m.ID)
	assert.Empty(t, m.CalendarEventID)

	m, err = NewService(nil, nil, quiet()).Arrange(context.Background(), Request{Platform: model.PlatformZoom})
	require.Error(t, err)
	assert.Equal(t, Meeting{}, m)
}

func TestRelease(t *testing.T) {
	cal, zoom := &fakeCalendar{}, &fakeZoom{}
	svc := NewService(cal, zoom, quiet())

	err := svc.Release(context.Background(), "u1", model.PlatformZoom, Meeting{ID: "987", CalendarEventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-1"}, cal.deleted)
	assert.Equal(t, []string{"987"}, zoom.deleted)

	require.NoError(t, svc.Release(context.Background(), "u1", model.PlatformNone, Meeting{}))
	assert.Len(t, cal.deleted, 1)
}

func TestZoomClient(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "account_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "acct", r.PostForm.Get("account_id"))
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", id)
		assert.Equal(t, "csecret", secret)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"zt","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v2/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer zt", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["type"])
		assert.Equal(t, float64(30), body["duration"])
		assert.Equal(t, "2026-03-02T01:00:00Z", body["start_time"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":85746065432,"join_url":"https://zoom.us/j/85746065432"}`)
	})
	mux.HandleFunc("/v2/meetings/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/locked") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":3000,"message":"Cannot delete"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	z := NewZoom(ZoomConfig{
		AccountID: "acct", ClientID: "cid", ClientSecret: "csecret",
		BaseURL: srv.URL + "/v2", TokenURL: srv.URL + "/oauth/token", HTTPClient: srv.Client(),
	})
	ctx := context.Background()

	id, url, err := z.CreateMeeting(ctx, "Intro", start, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "85746065432", id)
	assert.Equal(t, "https://zoom.us/j/85746065432", url)

	require.NoError(t, z.DeleteMeeting(ctx, id))
	require.NoError(t, z.DeleteMeeting(ctx, "missing"))
	err = z.DeleteMeeting(ctx, "locked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot delete")
	assert.Equal(t, int32(1), tokenCalls.Load())
}

type tokens map[string]*oauth2.Token

func (m tokens) GoogleToken(_ context.Context, userID string) (*oauth2.Token, error) {
	tok, ok := m[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return tok, nil
}

func TestGoogleMeetInsertAndDelete(t *testing.T) {
	var gotEvent map[string]any
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			gotQuery = r.URL.RawQuery
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"gev1","conferenceData":{"entryPoints":[
				{"entryPointType":"phone","uri":"tel:+1"},
				{"entryPointType":"video","uri":"https://meet.google.com/xyz"}]}}`)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/gone"):
			w.WriteHeader(http.StatusGone)
			_, _ = io.WriteString(w, `{"error":{"code":410,"message":"deleted"}}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := gcal.NewClient(gcal.Config{Endpoint: srv.URL + "/"}, tokens{
		"u1": {AccessToken: "abc", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)},
	})
	g := NewGoogleMeet(client)
	ctx := context.Background()

	id, url, err := g.InsertEvent(ctx, CalendarEvent{
		OrganizerID: "u1", Summary: "Intro - Ann", Start: start, End: end,
		AttendeeEmails: []string{"ann@example.com"}, WithMeet: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "gev1", id)
	assert.Equal(t, "https://meet.google.com/xyz", url)
	assert.Contains(t, gotQuery, "conferenceDataVersion=1")
	assert.Contains(t, gotQuery, "sendUpdates=all")
	conf := gotEvent["conferenceData"].(map[string]any)["createRequest"].(map[string]any)
	assert.True(t, strings.HasPrefix(conf["requestId"].(string), "meet-"))

	require.NoError(t, g.DeleteEvent(ctx, "u1", "gev1"))
	require.NoError(t, g.DeleteEvent(ctx, "u1", "gone"))

	id, url, err = g.InsertEvent(ctx, CalendarEvent{OrganizerID: "not-linked", Start: start, End: end})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, url)
}
