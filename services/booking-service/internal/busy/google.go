package busy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/gcal"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
)

const primaryCalendar = "primary"

// GoogleSource queries the free/busy endpoint for the user's primary calendar.
type GoogleSource struct {
	client *gcal.Client
}

func NewGoogleSource(client *gcal.Client) *GoogleSource {
	return &GoogleSource{client: client}
}

func (s *GoogleSource) Name() string {
	return "google"
}

func (s *GoogleSource) Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	svc, err := s.client.Service(ctx, userID)
	if errors.Is(err, gcal.ErrNotConnected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resp, err := svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  start.UTC().Format(time.RFC3339),
		TimeMax:  end.UTC().Format(time.RFC3339),
		TimeZone: "UTC",
		Items:    []*calendar.FreeBusyRequestItem{{Id: primaryCalendar}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[primaryCalendar]
	if !ok {
		return nil, errors.New("freebusy response missing primary calendar")
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("freebusy calendar errors: %s", strings.Join(reasons, ", "))
	}

	out := make([]interval.Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		bs, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("freebusy start %q: %w", p.Start, err)
		}
		be, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("freebusy end %q: %w", p.End, err)
		}
		out = append(out, interval.Interval{Start: bs.UTC(), End: be.UTC()})
	}
	return clip(out, start, end), nil
}
