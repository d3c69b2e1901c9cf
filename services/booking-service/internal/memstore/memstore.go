// Package memstore keeps every piece of booking state in memory. It backs tests and the offline
// simulator and mirrors the Postgres constraints that matter to the write path.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

type Store struct {
	mu        sync.Mutex
	templates map[string]model.EventTemplate
	users     map[string]model.User
	schedules map[string]model.Schedule
	overrides map[string][]model.DateOverride
	bookings  []model.Booking
	busy      map[string][]interval.Interval
	events    []outbox.Event
	idem      map[string]string
	locks     map[string]chan struct{}
	now       func() time.Time
}

func New() *Store {
	return &Store{
		templates: map[string]model.EventTemplate{},
		users:     map[string]model.User{},
		schedules: map[string]model.Schedule{},
		overrides: map[string][]model.DateOverride{},
		busy:      map[string][]interval.Interval{},
		idem:      map[string]string{},
		locks:     map[string]chan struct{}{},
		now:       time.Now,
	}
}

// SetClock replaces time.Now for created and cancelled timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) PutTemplate(t model.EventTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutSchedule stores sched as the user's default schedule.
func (s *Store) PutSchedule(sched model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched.IsDefault = true
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	s.schedules[sched.UserID] = sched
}

func (s *Store) PutOverride(o model.DateOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.overrides[o.UserID] = append(s.overrides[o.UserID], o)
}

// PutBooking stores b as is, bypassing the overlap check.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusConfirmed
	}
	s.bookings = append(s.bookings, b)
}

func (s *Store) PutBusy(userID string, busy ...interval.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy[userID] = append(s.busy[userID], busy...)
}

// Events returns the committed outbox events in write order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *Store) LoadTemplate(_ context.Context, templateID string) (model.EventTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return model.EventTemplate{}, model.ErrNotFound
	}
	t.MemberIDs = append([]string(nil), t.MemberIDs...)
	return t, nil
}

func (s *Store) LoadUser(_ context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (s *Store) LoadDefaultSchedule(_ context.Context, userID string) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[userID]
	if !ok {
		return model.Schedule{}, model.ErrNotFound
	}
	sched.Rules = append([]model.WeeklyRule(nil), sched.Rules...)
	return sched, nil
}

func (s *Store) LoadOverrides(_ context.Context, userID string, from, to tz.Date) ([]model.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DateOverride
	for _, o := range s.overrides[userID] {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) LoadConfirmedBookings(_ context.Context, templateID string, start, end time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := interval.Interval{Start: start, End: end}
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TemplateID != templateID || b.Status != model.StatusConfirmed {
			continue
		}
		if window.Overlaps(interval.Interval{Start: b.StartTime, End: b.EndTime}) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Name and Busy make the store a busy.Source over the intervals given to PutBusy.
func (s *Store) Name() string {
	return "memory"
}

func (s *Store) Busy(_ context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := interval.Interval{Start: start, End: end}
	var out []interval.Interval
	for _, iv := range s.busy[userID] {
		if window.Overlaps(iv) {
			out = append(out, iv)
		}
	}
	return interval.Merge(out), nil
}

func (s *Store) GetBooking(_ context.Context, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(bookingID); i >= 0 {
		return s.bookings[i], nil
	}
	return model.Booking{}, model.ErrNotFound
}

func (s *Store) ListBookings(_ context.Context, templateID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TemplateID == templateID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachMeeting(_ context.Context, bookingID, meetingURL, meetingID, calendarEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(bookingID)
	if i < 0 {
		return model.ErrNotFound
	}
	s.bookings[i].MeetingURL = meetingURL
	s.bookings[i].MeetingID = meetingID
	s.bookings[i].CalendarEventID = calendarEventID
	return nil
}

func (s *Store) Begin(_ context.Context) (booking.Tx, error) {
	return &tx{s: s}, nil
}

func (s *Store) indexOf(bookingID string) int {
	for i, b := range s.bookings {
		if b.ID == bookingID {
			return i
		}
	}
	return -1
}

// overlapsConfirmed mirrors the bookings exclusion constraint.
func overlapsConfirmed(existing []model.Booking, b model.Booking) bool {
	iv := interval.Interval{Start: b.StartTime, End: b.EndTime}
	for _, o := range existing {
		if o.Status != model.StatusConfirmed || o.AssignedUserID != b.AssignedUserID || o.ID == b.ID {
			continue
		}
		if iv.Overlaps(interval.Interval{Start: o.StartTime, End: o.EndTime}) {
			return true
		}
	}
	return false
}

func (s *Store) lockChan(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}
