// Package ics renders a booking as an iCalendar file.
package ics

import (
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const productID = "-//slotbook//booking//EN"

type Input struct {
	Booking       model.Booking
	TemplateTitle string
	// Location is used when the booking has no meeting URL.
	Location  string
	Organizer model.User
	Now       time.Time
}

// Calendar builds a VCALENDAR holding one VEVENT for the booking.
func Calendar(in Input) *ical.Calendar {
	b := in.Booking
	title := in.TemplateTitle
	if title == "" {
		title = "Meeting"
	}

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, b.ID+"@slotbook")
	ev.Props.SetDateTime(ical.PropDateTimeStamp, in.Now.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, b.StartTime.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, b.EndTime.UTC())
	ev.Props.SetText(ical.PropSummary, title+" - "+b.GuestName)

	var desc []string
	if b.MeetingURL != "" {
		desc = append(desc, "Meeting Link: "+b.MeetingURL)
	}
	if b.GuestNotes != "" {
		desc = append(desc, "Notes: "+b.GuestNotes)
	}
	if len(desc) > 0 {
		ev.Props.SetText(ical.PropDescription, strings.Join(desc, "\n"))
	}

	if loc := firstNonEmpty(b.MeetingURL, in.Location); loc != "" {
		ev.Props.SetText(ical.PropLocation, loc)
	}
	if b.MeetingURL != "" {
		url := ical.NewProp(ical.PropURL)
		url.Value = b.MeetingURL
		ev.Props.Set(url)
	}

	if in.Organizer.Email != "" {
		org := ical.NewProp(ical.PropOrganizer)
		org.Value = "mailto:" + in.Organizer.Email
		org.Params.Set(ical.ParamCommonName, firstNonEmpty(in.Organizer.Name, "Organizer"))
		ev.Props.Set(org)
	}

	att := ical.NewProp(ical.PropAttendee)
	att.Value = "mailto:" + b.GuestEmail
	att.Params.Set(ical.ParamCommonName, b.GuestName)
	att.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
	att.Params.Set(ical.ParamParticipationStatus, "ACCEPTED")
	att.Params.Set(ical.ParamRSVP, "TRUE")
	ev.Props.Add(att)

	status := "CONFIRMED"
	if b.Status == model.StatusCancelled {
		status = "CANCELLED"
	}
	ev.Props.SetText(ical.PropStatus, status)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

// Write encodes the booking's calendar to w.
func Write(w io.Writer, in Input) error {
	return ical.NewEncoder(w).Encode(Calendar(in))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
