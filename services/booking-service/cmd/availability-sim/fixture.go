package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// fixture is the YAML shape read by the simulator. Times of day are "HH:MM", dates "YYYY-MM-DD" and
// instants RFC 3339.
type fixture struct {
	Templates []templateFixture `yaml:"templates"`
	Users     []userFixture     `yaml:"users"`
	Schedules []scheduleFixture `yaml:"schedules"`
	Overrides []overrideFixture `yaml:"overrides"`
	Bookings  []bookingFixture  `yaml:"bookings"`
	Busy      []busyFixture     `yaml:"busy"`
}

type templateFixture struct {
	ID           string   `yaml:"id"`
	Owner        string   `yaml:"owner"`
	Members      []string `yaml:"members"`
	Title        string   `yaml:"title"`
	Duration     int      `yaml:"duration_minutes"`
	BufferBefore int      `yaml:"buffer_before_minutes"`
	BufferAfter  int      `yaml:"buffer_after_minutes"`
	MinNotice    *int     `yaml:"min_notice_minutes"`
	MaxAdvance   int      `yaml:"max_advance_days"`
	Mode         string   `yaml:"mode"`
	Platform     string   `yaml:"platform"`
	Inactive     bool     `yaml:"inactive"`
}

type userFixture struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type ruleFixture struct {
	Day   string `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type scheduleFixture struct {
	User     string        `yaml:"user"`
	Timezone string        `yaml:"timezone"`
	Rules    []ruleFixture `yaml:"rules"`
}

type overrideFixture struct {
	User    string `yaml:"user"`
	Date    string `yaml:"date"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Blocked bool   `yaml:"blocked"`
}

type bookingFixture struct {
	Template string `yaml:"template"`
	User     string `yaml:"user"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Status   string `yaml:"status"`
}

type busyFixture struct {
	User  string `yaml:"user"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func loadFixture(path string) (*memstore.Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.store()
}

// store validates every entry the way the HTTP layer would and loads it into a fresh memstore.
func (f fixture) store() (*memstore.Store, error) {
	st := memstore.New()

	for _, t := range f.Templates {
		tpl := model.EventTemplate{
			ID:                  t.ID,
			OwnerID:             t.Owner,
			MemberIDs:           t.Members,
			Title:               t.Title,
			DurationMinutes:     orDefault(t.Duration, model.DefaultDurationMinutes),
			BufferBeforeMinutes: t.BufferBefore,
			BufferAfterMinutes:  t.BufferAfter,
			MinNoticeMinutes:    model.DefaultMinNoticeMinutes,
			MaxAdvanceDays:      orDefault(t.MaxAdvance, model.DefaultMaxAdvanceDays),
			Mode:                model.SchedulingMode(t.Mode),
			Platform:            model.MeetingPlatform(t.Platform),
			Active:              !t.Inactive,
		}
		if t.MinNotice != nil {
			tpl.MinNoticeMinutes = *t.MinNotice
		}
		if tpl.Mode == "" {
			tpl.Mode = model.ModeAnyAvailable
		}
		if tpl.Platform == "" {
			tpl.Platform = model.PlatformNone
		}
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.ID, err)
		}
		st.PutTemplate(tpl)
	}

	for _, u := range f.Users {
		st.PutUser(model.User{ID: u.ID, Name: u.Name, Email: u.Email})
	}

	for _, s := range f.Schedules {
		sched := model.Schedule{
			ID:        s.User + "-default",
			UserID:    s.User,
			Name:      "Default",
			Timezone:  s.Timezone,
			IsDefault: true,
		}
		if sched.Timezone == "" {
			sched.Timezone = model.DefaultScheduleTimezone
		}
		for _, r := range s.Rules {
			rule, err := parseRule(r)
			if err != nil {
				return nil, fmt.Errorf("schedule for %q: %w", s.User, err)
			}
			sched.Rules = append(sched.Rules, rule)
		}
		if err := sched.Validate(); err != nil {
			return nil, fmt.Errorf("schedule for %q: %w", s.User, err)
		}
		st.PutSchedule(sched)
	}

	for _, o := range f.Overrides {
		ov, err := parseOverride(o)
		if err != nil {
			return nil, fmt.Errorf("override for %q: %w", o.User, err)
		}
		st.PutOverride(ov)
	}

	for _, b := range f.Bookings {
		start, end, err := parseSpan(b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("booking on %q: %w", b.Template, err)
		}
		st.PutBooking(model.Booking{
			TemplateID:     b.Template,
			AssignedUserID: b.User,
			StartTime:      start,
			EndTime:        end,
			Status:         model.BookingStatus(b.Status),
		})
	}

	for _, b := range f.Busy {
		start, end, err := parseSpan(b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("busy for %q: %w", b.User, err)
		}
		st.PutBusy(b.User, interval.Interval{Start: start, End: end})
	}
	return st, nil
}

func parseRule(r ruleFixture) (model.WeeklyRule, error) {
	day, err := tz.ParseWeekday(r.Day)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	start, err := tz.ParseClock(r.Start)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	end, err := tz.ParseClock(r.End)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	rule := model.WeeklyRule{Day: day, Start: start, End: end}
	return rule, rule.Validate()
}

func parseOverride(o overrideFixture) (model.DateOverride, error) {
	d, err := tz.ParseDate(o.Date)
	if err != nil {
		return model.DateOverride{}, err
	}
	ov := model.DateOverride{UserID: o.User, Date: d, Blocked: o.Blocked}
	if o.Start != "" {
		c, err := tz.ParseClock(o.Start)
		if err != nil {
			return model.DateOverride{}, err
		}
		ov.Start = &c
	}
	if o.End != "" {
		c, err := tz.ParseClock(o.End)
		if err != nil {
			return model.DateOverride{}, err
		}
		ov.End = &c
	}
	return ov, ov.Validate()
}

func parseSpan(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !s.Before(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", end, start)
	}
	return s.UTC(), e.UTC(), nil
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
