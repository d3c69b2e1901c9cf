package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

func (s *Store) SaveDefaultSchedule(_ context.Context, sched model.Schedule) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.schedules[sched.UserID]; ok {
		sched.ID = prev.ID
		if sched.Name == "" {
			sched.Name = prev.Name
		}
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.Name == "" {
		sched.Name = "Working hours"
	}
	sched.IsDefault = true
	sched.Rules = append([]model.WeeklyRule(nil), sched.Rules...)
	s.schedules[sched.UserID] = sched
	return sched, nil
}

func (s *Store) AddOverride(_ context.Context, o model.DateOverride) (model.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = uuid.NewString()
	if o.Blocked {
		kept := s.overrides[o.UserID][:0]
		for _, existing := range s.overrides[o.UserID] {
			if existing.Date != o.Date {
				kept = append(kept, existing)
			}
		}
		s.overrides[o.UserID] = kept
	}
	s.overrides[o.UserID] = append(s.overrides[o.UserID], o)
	return o, nil
}

func (s *Store) DeleteOverrides(_ context.Context, userID string, date tz.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.DateOverride
	removed := 0
	for _, o := range s.overrides[userID] {
		if o.Date == date {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	s.overrides[userID] = kept
	return removed, nil
}
