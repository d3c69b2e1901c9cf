package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/gcal"
)

const primaryCalendar = "primary"

// GoogleMeet writes events to the organizer's primary Google calendar, optionally with a Meet
// conference. Organizers without a Google connection are skipped.
type GoogleMeet struct {
	client *gcal.Client
}

func NewGoogleMeet(client *gcal.Client) *GoogleMeet {
	return &GoogleMeet{client: client}
}

func (g *GoogleMeet) InsertEvent(ctx context.Context, ev CalendarEvent) (string, string, error) {
	svc, err := g.client.Service(ctx, ev.OrganizerID)
	if errors.Is(err, gcal.ErrNotConnected) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}

	event := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	for _, email := range ev.AttendeeEmails {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	version := int64(0)
	if ev.WithMeet {
		version = 1
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             "meet-" + uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	created, err := svc.Events.Insert(primaryCalendar, event).
		ConferenceDataVersion(version).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, videoEntryPoint(created.ConferenceData), nil
}

// DeleteEvent treats an event that is already gone as deleted.
func (g *GoogleMeet) DeleteEvent(ctx context.Context, organizerID, eventID string) error {
	svc, err := g.client.Service(ctx, organizerID)
	if errors.Is(err, gcal.ErrNotConnected) {
		return nil
	}
	if err != nil {
		return err
	}
	err = svc.Events.Delete(primaryCalendar, eventID).SendUpdates("all").Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	return err
}

func videoEntryPoint(cd *calendar.ConferenceData) string {
	if cd == nil {
		return ""
	}
	for _, ep := range cd.EntryPoints {
		if ep.EntryPointType == "video" {
			return ep.Uri
		}
	}
	return ""
}
