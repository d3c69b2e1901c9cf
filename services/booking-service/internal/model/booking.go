package model

import "time"

type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusRescheduled BookingStatus = "rescheduled"
)

type Booking struct {
	ID                 string
	TemplateID         string
	AssignedUserID     string
	GuestName          string
	GuestEmail         string
	GuestTimezone      string
	GuestNotes         string
	StartTime          time.Time
	EndTime            time.Time
	Status             BookingStatus
	MeetingURL         string
	MeetingID          string
	CalendarEventID    string
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
}

// Slot is a computed bookable interval. It is never stored.
type Slot struct {
	Start    time.Time
	End      time.Time
	Eligible []string
}
