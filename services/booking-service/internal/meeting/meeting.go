// Package meeting creates the organizer's calendar event and the video meeting for a booking.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Request struct {
	Platform       model.MeetingPlatform
	OrganizerID    string
	Title          string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	AttendeeEmails []string
}

// Meeting is what gets attached to a booking. Any field may be empty.
type Meeting struct {
	URL             string
	ID              string
	CalendarEventID string
}

type CalendarEvent struct {
	OrganizerID    string
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	AttendeeEmails []string
	WithMeet       bool
}

// Calendar writes events to the organizer's calendar. ConferenceURL is set when WithMeet was requested.
type Calendar interface {
	InsertEvent(ctx context.Context, ev CalendarEvent) (id, conferenceURL string, err error)
	DeleteEvent(ctx context.Context, organizerID, eventID string) error
}

// Conferencing hosts standalone video meetings.
type Conferencing interface {
	CreateMeeting(ctx context.Context, topic string, start time.Time, duration time.Duration) (id, joinURL string, err error)
	DeleteMeeting(ctx context.Context, id string) error
}

type Service struct {
	calendar Calendar
	zoom     Conferencing
	logger   *slog.Logger
}

// NewService accepts nil collaborators; the matching step is then skipped.
func NewService(calendar Calendar, zoom Conferencing, logger *slog.Logger) *Service {
	return &Service{calendar: calendar, zoom: zoom, logger: logger}
}

// Arrange runs the Zoom step (platform zoom only) and then the calendar step. A failed step does not stop
// the next one; the returned Meeting carries whatever succeeded alongside the joined errors.
func (s *Service) Arrange(ctx context.Context, req Request) (Meeting, error) {
	var m Meeting
	var errs []error

	if req.Platform == model.PlatformZoom {
		if s.zoom == nil {
			errs = append(errs, errors.New("zoom is not configured"))
		} else {
			id, url, err := s.zoom.CreateMeeting(ctx, req.Title, req.Start, req.End.Sub(req.Start))
			if err != nil {
				errs = append(errs, fmt.Errorf("zoom: %w", err))
			} else {
				m.ID, m.URL = id, url
			}
		}
	}

	if s.calendar != nil {
		location := req.Location
		if m.URL != "" {
			location = m.URL
		}
		description := req.Description
		if m.URL != "" {
			description = joinLines(description, "Meeting Link: "+m.URL)
		}
		id, confURL, err := s.calendar.InsertEvent(ctx, CalendarEvent{
			OrganizerID:    req.OrganizerID,
			Summary:        req.Title,
			Description:    description,
			Location:       location,
			Start:          req.Start,
			End:            req.End,
			AttendeeEmails: req.AttendeeEmails,
			WithMeet:       req.Platform == model.PlatformGoogleMeet,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("calendar event: %w", err))
		} else {
			m.CalendarEventID = id
			if confURL != "" {
				m.URL = confURL
			}
		}
	}

	return m, errors.Join(errs...)
}

// Release undoes Arrange. Both steps are attempted.
func (s *Service) Release(ctx context.Context, organizerID string, platform model.MeetingPlatform, m Meeting) error {
	var errs []error
	if m.CalendarEventID != "" && s.calendar != nil {
		if err := s.calendar.DeleteEvent(ctx, organizerID, m.CalendarEventID); err != nil {
			errs = append(errs, fmt.Errorf("calendar event: %w", err))
		}
	}
	if platform == model.PlatformZoom && m.ID != "" && s.zoom != nil {
		if err := s.zoom.DeleteMeeting(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("zoom: %w", err))
		}
	}
	return errors.Join(errs...)
}

func joinLines(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
