package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/ics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const maxIdempotencyKeyLen = 200

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type createBookingRequest struct {
	TemplateID    string `json:"templateId"`
	StartTime     string `json:"startTime"`
	GuestName     string `json:"guestName"`
	GuestEmail    string `json:"guestEmail"`
	GuestTimezone string `json:"guestTimezone"`
	GuestNotes    string `json:"guestNotes"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type bookingResponse struct {
	ID                 string `json:"id"`
	TemplateID         string `json:"templateId"`
	AssignedUserID     string `json:"assignedUserId"`
	GuestName          string `json:"guestName"`
	GuestEmail         string `json:"guestEmail"`
	GuestTimezone      string `json:"guestTimezone"`
	GuestNotes         string `json:"guestNotes,omitempty"`
	StartTime          string `json:"startTime"`
	EndTime            string `json:"endTime"`
	Status             string `json:"status"`
	MeetingURL         string `json:"meetingUrl,omitempty"`
	MeetingID          string `json:"meetingId,omitempty"`
	CalendarEventID    string `json:"calendarEventId,omitempty"`
	CancelledAt        string `json:"cancelledAt,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:                 b.ID,
		TemplateID:         b.TemplateID,
		AssignedUserID:     b.AssignedUserID,
		GuestName:          b.GuestName,
		GuestEmail:         b.GuestEmail,
		GuestTimezone:      b.GuestTimezone,
		GuestNotes:         b.GuestNotes,
		StartTime:          b.StartTime.UTC().Format(time.RFC3339),
		EndTime:            b.EndTime.UTC().Format(time.RFC3339),
		Status:             string(b.Status),
		MeetingURL:         b.MeetingURL,
		MeetingID:          b.MeetingID,
		CalendarEventID:    b.CalendarEventID,
		CancellationReason: b.CancellationReason,
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !b.CreatedAt.IsZero() {
		resp.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Create serves POST /api/v1/bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startTime")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}

	b, replayed, err := h.svc.Book(r.Context(), booking.Request{
		TemplateID:    req.TemplateID,
		StartTime:     start,
		GuestName:     req.GuestName,
		GuestEmail:    req.GuestEmail,
		GuestTimezone: req.GuestTimezone,
		GuestNotes:    req.GuestNotes,
	}, key)
	if err != nil {
		writeDomainError(w, h.logger, err, "event template not found")
		return
	}
	if replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// Get serves GET /api/v1/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// List serves GET /api/v1/bookings?template_id=&limit=
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	items, err := h.svc.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("template_id")), limit)
	if err != nil {
		writeDomainError(w, h.logger, err, "template not found")
		return
	}
	out := make([]bookingResponse, 0, len(items))
	for _, b := range items {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// Cancel serves POST /api/v1/bookings/{id}/cancel. The body is optional.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	b, err := h.svc.Cancel(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// ICS serves GET /api/v1/bookings/{id}/ics.
func (h *BookingHandler) ICS(w http.ResponseWriter, r *http.Request) {
	in, err := h.svc.Calendar(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err, "booking not found")
		return
	}
	var buf bytes.Buffer
	if err := ics.Write(&buf, in); err != nil {
		h.logger.Error("ics encode failed", "booking_id", in.Booking.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meeting.ics"`)
	_, _ = w.Write(buf.Bytes())
}
