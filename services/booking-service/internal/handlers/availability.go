package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

type SlotFinder interface {
	Slots(ctx context.Context, q availability.Query) ([]model.Slot, error)
}

type AvailabilityHandler struct {
	engine          SlotFinder
	defaultTimezone string
	logger          *slog.Logger
}

func NewAvailabilityHandler(engine SlotFinder, defaultTimezone string, logger *slog.Logger) *AvailabilityHandler {
	if defaultTimezone == "" {
		defaultTimezone = model.DefaultScheduleTimezone
	}
	return &AvailabilityHandler{engine: engine, defaultTimezone: defaultTimezone, logger: logger}
}

type slotItem struct {
	StartTime              string   `json:"startTime"`
	EndTime                string   `json:"endTime"`
	EligibleParticipantIDs []string `json:"eligibleParticipantIds"`
}

type availabilityResponse struct {
	Date     string     `json:"date"`
	Timezone string     `json:"timezone"`
	Slots    []slotItem `json:"slots"`
}

// Get serves GET /api/v1/availability?template_id=&date=YYYY-MM-DD&timezone=
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templateID := strings.TrimSpace(q.Get("template_id"))
	if templateID == "" {
		writeError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	date, err := tz.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	zone := strings.TrimSpace(q.Get("timezone"))
	if zone == "" {
		zone = h.defaultTimezone
	}

	slots, err := h.engine.Slots(r.Context(), availability.Query{
		TemplateID:    templateID,
		Date:          date,
		GuestTimezone: zone,
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "template not found")
		return
	}

	resp := availabilityResponse{Date: date.String(), Timezone: zone, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime:              s.Start.UTC().Format(time.RFC3339),
			EndTime:                s.End.UTC().Format(time.RFC3339),
			EligibleParticipantIDs: s.Eligible,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
