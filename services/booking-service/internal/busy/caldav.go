package busy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// CalDAVAccount locates one user's calendar collection on a CalDAV server.
type CalDAVAccount struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarPath string
}

// CalDAVAccounts returns model.ErrNotFound for users without a CalDAV connection.
type CalDAVAccounts interface {
	CalDAVAccount(ctx context.Context, userID string) (CalDAVAccount, error)
}

type CalDAVSource struct {
	accounts   CalDAVAccounts
	httpClient *http.Client
}

func NewCalDAVSource(accounts CalDAVAccounts, httpClient *http.Client) *CalDAVSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CalDAVSource{accounts: accounts, httpClient: httpClient}
}

func (s *CalDAVSource) Name() string {
	return "caldav"
}

func (s *CalDAVSource) Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	acct, err := s.accounts.CalDAVAccount(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load caldav account: %w", err)
	}

	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(s.httpClient, acct.Username, acct.Password), acct.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	objects, err := client.QueryCalendar(ctx, acct.CalendarPath, &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name: ical.CompEvent,
				Props: []string{
					ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropDuration,
					ical.PropTransparency, ical.PropStatus,
					ical.PropRecurrenceRule, ical.PropExceptionDates, ical.PropRecurrenceID,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("caldav query: %w", err)
	}

	var out []interval.Interval
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		ivs, err := objectIntervals(obj.Data.Events(), start, end)
		if err != nil {
			return nil, fmt.Errorf("caldav object %s: %w", obj.Path, err)
		}
		out = append(out, ivs...)
	}
	return clip(interval.Merge(out), start, end), nil
}

// objectIntervals expands the events of one calendar object into the busy time they cause within
// [start, end). Recurring masters are expanded here; an occurrence replaced by a RECURRENCE-ID
// override is taken from the override instead.
func objectIntervals(events []ical.Event, start, end time.Time) ([]interval.Interval, error) {
	overridden := make(map[int64]bool)
	for _, ev := range events {
		if ev.Props.Get(ical.PropRecurrenceID) == nil {
			continue
		}
		rid, err := ev.Props.DateTime(ical.PropRecurrenceID, time.UTC)
		if err != nil {
			return nil, err
		}
		overridden[rid.Unix()] = true
	}

	var out []interval.Interval
	for _, ev := range events {
		iv, ok, err := eventInterval(ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		set, err := ev.RecurrenceSet(time.UTC)
		if err != nil {
			return nil, err
		}
		if set == nil || ev.Props.Get(ical.PropRecurrenceID) != nil {
			out = append(out, iv)
			continue
		}
		length := iv.End.Sub(iv.Start)
		for _, occ := range set.Between(start.Add(-length), end, true) {
			if overridden[occ.Unix()] {
				continue
			}
			out = append(out, interval.Interval{Start: occ.UTC(), End: occ.Add(length).UTC()})
		}
	}
	return out, nil
}

// eventInterval returns the time an event blocks. Free (transparent) and cancelled events block nothing.
func eventInterval(ev ical.Event) (interval.Interval, bool, error) {
	if p := ev.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return interval.Interval{}, false, nil
	}
	if p := ev.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return interval.Interval{}, false, nil
	}
	start, err := ev.DateTimeStart(time.UTC)
	if err != nil {
		return interval.Interval{}, false, err
	}
	end, err := ev.DateTimeEnd(time.UTC)
	if err != nil {
		return interval.Interval{}, false, err
	}
	iv := interval.Interval{Start: start.UTC(), End: end.UTC()}
	return iv, !iv.Empty(), nil
}
