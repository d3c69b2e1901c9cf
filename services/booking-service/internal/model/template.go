package model

import (
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

type SchedulingMode string

const (
	ModeAnyAvailable   SchedulingMode = "any_available"
	ModeAllAvailable   SchedulingMode = "all_available"
	ModeSpecificPerson SchedulingMode = "specific_person"
)

func (m SchedulingMode) Valid() bool {
	switch m {
	case ModeAnyAvailable, ModeAllAvailable, ModeSpecificPerson:
		return true
	}
	return false
}

type MeetingPlatform string

const (
	PlatformGoogleMeet MeetingPlatform = "google_meet"
	PlatformZoom       MeetingPlatform = "zoom"
	PlatformNone       MeetingPlatform = "none"
)

const (
	DefaultDurationMinutes  = 30
	DefaultMinNoticeMinutes = 60
	DefaultMaxAdvanceDays   = 60
	DefaultScheduleTimezone = "Asia/Tokyo"
)

// EventTemplate is a bookable meeting type and the people who can host it.
type EventTemplate struct {
	ID                  string
	OwnerID             string
	Title               string
	Description         string
	Location            string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	MinNoticeMinutes    int
	MaxAdvanceDays      int
	Mode                SchedulingMode
	Platform            MeetingPlatform
	Active              bool
	MemberIDs           []string
}

// Participants returns the owner followed by members in stored order, without duplicates.
// Specific-person templates are hosted by the owner alone.
func (t EventTemplate) Participants() []string {
	if t.Mode == ModeSpecificPerson {
		return []string{t.OwnerID}
	}
	seen := map[string]struct{}{t.OwnerID: {}}
	out := []string{t.OwnerID}
	for _, id := range t.MemberIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (t EventTemplate) Validate() error {
	switch {
	case t.OwnerID == "":
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	case t.DurationMinutes < 5 || t.DurationMinutes > 480:
		return &ValidationError{Field: "duration_minutes", Reason: "must be between 5 and 480"}
	case t.BufferBeforeMinutes < 0 || t.BufferBeforeMinutes > 120:
		return &ValidationError{Field: "buffer_before_minutes", Reason: "must be between 0 and 120"}
	case t.BufferAfterMinutes < 0 || t.BufferAfterMinutes > 120:
		return &ValidationError{Field: "buffer_after_minutes", Reason: "must be between 0 and 120"}
	case t.MinNoticeMinutes < 0:
		return &ValidationError{Field: "min_notice_minutes", Reason: "must not be negative"}
	case t.MaxAdvanceDays < 1 || t.MaxAdvanceDays > 365:
		return &ValidationError{Field: "max_advance_days", Reason: "must be between 1 and 365"}
	case !t.Mode.Valid():
		return &ValidationError{Field: "scheduling_mode", Reason: "is not a known mode"}
	}
	return nil
}

// Schedule is a user's named weekly availability.
type Schedule struct {
	ID        string
	UserID    string
	Name      string
	Timezone  string
	IsDefault bool
	Rules     []WeeklyRule
}

func (s Schedule) Validate() error {
	if _, err := tz.LoadZone(s.Timezone); err != nil {
		return &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	for _, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type WeeklyRule struct {
	Day   tz.Weekday
	Start tz.Clock
	End   tz.Clock
}

func (r WeeklyRule) Validate() error {
	if _, err := tz.ParseWeekday(string(r.Day)); err != nil {
		return &ValidationError{Field: "day_of_week", Reason: err.Error()}
	}
	if !r.Start.Before(r.End) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

// DateOverride replaces or blocks a user's weekly rules for one date.
// Start and End are nil when the override carries no explicit window.
type DateOverride struct {
	ID      string
	UserID  string
	Date    tz.Date
	Start   *tz.Clock
	End     *tz.Clock
	Blocked bool
}

func (o DateOverride) HasWindow() bool {
	return !o.Blocked && o.Start != nil && o.End != nil
}

func (o DateOverride) Validate() error {
	if o.Blocked {
		return nil
	}
	if (o.Start == nil) != (o.End == nil) {
		return &ValidationError{Field: "start_time", Reason: "start_time and end_time go together"}
	}
	if o.Start != nil && !o.Start.Before(*o.End) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

type User struct {
	ID    string
	Name  string
	Email string
}
