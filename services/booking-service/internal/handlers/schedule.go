package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

type ScheduleStore interface {
	LoadDefaultSchedule(ctx context.Context, userID string) (model.Schedule, error)
	SaveDefaultSchedule(ctx context.Context, sched model.Schedule) (model.Schedule, error)
	AddOverride(ctx context.Context, o model.DateOverride) (model.DateOverride, error)
	DeleteOverrides(ctx context.Context, userID string, date tz.Date) (int, error)
}

type ScheduleHandler struct {
	store  ScheduleStore
	logger *slog.Logger
}

func NewScheduleHandler(store ScheduleStore, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{store: store, logger: logger}
}

type ruleItem struct {
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type scheduleResponse struct {
	ID       string     `json:"id"`
	UserID   string     `json:"userId"`
	Name     string     `json:"name"`
	Timezone string     `json:"timezone"`
	Rules    []ruleItem `json:"rules"`
}

type putScheduleRequest struct {
	Timezone string     `json:"timezone"`
	Rules    []ruleItem `json:"rules"`
}

type overrideRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	IsBlocked bool   `json:"isBlocked"`
}

type overrideResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	IsBlocked bool   `json:"isBlocked"`
}

func toScheduleResponse(s model.Schedule) scheduleResponse {
	resp := scheduleResponse{ID: s.ID, UserID: s.UserID, Name: s.Name, Timezone: s.Timezone, Rules: make([]ruleItem, 0, len(s.Rules))}
	for _, r := range s.Rules {
		resp.Rules = append(resp.Rules, ruleItem{DayOfWeek: string(r.Day), StartTime: r.Start.String(), EndTime: r.End.String()})
	}
	return resp
}

// GetSchedule serves GET /api/v1/users/{id}/schedule.
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.store.LoadDefaultSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

// PutSchedule serves PUT /api/v1/users/{id}/schedule and replaces every rule.
func (h *ScheduleHandler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var req putScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	zone := strings.TrimSpace(req.Timezone)
	if zone == "" {
		zone = model.DefaultScheduleTimezone
	}
	sched := model.Schedule{UserID: r.PathValue("id"), Timezone: zone, IsDefault: true}
	for _, item := range req.Rules {
		rule, err := parseRuleItem(item)
		if err != nil {
			writeDomainError(w, h.logger, err, "")
			return
		}
		sched.Rules = append(sched.Rules, rule)
	}
	if err := sched.Validate(); err != nil {
		writeDomainError(w, h.logger, err, "")
		return
	}

	saved, err := h.store.SaveDefaultSchedule(r.Context(), sched)
	if err != nil {
		writeDomainError(w, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(saved))
}

// AddOverride serves POST /api/v1/users/{id}/overrides.
func (h *ScheduleHandler) AddOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	date, err := tz.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	o := model.DateOverride{UserID: r.PathValue("id"), Date: date, Blocked: req.IsBlocked}
	if !req.IsBlocked {
		if req.StartTime != "" {
			c, err := tz.ParseClock(req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid startTime")
				return
			}
			o.Start = &c
		}
		if req.EndTime != "" {
			c, err := tz.ParseClock(req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid endTime")
				return
			}
			o.End = &c
		}
	}
	if err := o.Validate(); err != nil {
		writeDomainError(w, h.logger, err, "")
		return
	}

	saved, err := h.store.AddOverride(r.Context(), o)
	if err != nil {
		writeDomainError(w, h.logger, err, "user not found")
		return
	}
	resp := overrideResponse{ID: saved.ID, UserID: saved.UserID, Date: saved.Date.String(), IsBlocked: saved.Blocked}
	if saved.HasWindow() {
		resp.StartTime, resp.EndTime = saved.Start.String(), saved.End.String()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteOverrides serves DELETE /api/v1/users/{id}/overrides/{date}.
func (h *ScheduleHandler) DeleteOverrides(w http.ResponseWriter, r *http.Request) {
	date, err := tz.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	n, err := h.store.DeleteOverrides(r.Context(), r.PathValue("id"), date)
	if err != nil {
		writeDomainError(w, h.logger, err, "")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "no overrides for date")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRuleItem(item ruleItem) (model.WeeklyRule, error) {
	day, err := tz.ParseWeekday(item.DayOfWeek)
	if err != nil {
		return model.WeeklyRule{}, &model.ValidationError{Field: "dayOfWeek", Reason: err.Error()}
	}
	start, err := tz.ParseClock(item.StartTime)
	if err != nil {
		return model.WeeklyRule{}, &model.ValidationError{Field: "startTime", Reason: err.Error()}
	}
	end, err := tz.ParseClock(item.EndTime)
	if err != nil {
		return model.WeeklyRule{}, &model.ValidationError{Field: "endTime", Reason: err.Error()}
	}
	rule := model.WeeklyRule{Day: day, Start: start, End: end}
	return rule, rule.Validate()
}
