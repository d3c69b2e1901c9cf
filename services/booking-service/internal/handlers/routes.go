package handlers

import "net/http"

// Register mounts the public API on mux.
func Register(mux *http.ServeMux, avail *AvailabilityHandler, bookings *BookingHandler, schedules *ScheduleHandler) {
	mux.HandleFunc("GET /api/v1/availability", avail.Get)

	mux.HandleFunc("POST /api/v1/bookings", bookings.Create)
	mux.HandleFunc("GET /api/v1/bookings", bookings.List)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.Get)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.Cancel)
	mux.HandleFunc("GET /api/v1/bookings/{id}/ics", bookings.ICS)

	mux.HandleFunc("GET /api/v1/users/{id}/schedule", schedules.GetSchedule)
	mux.HandleFunc("PUT /api/v1/users/{id}/schedule", schedules.PutSchedule)
	mux.HandleFunc("POST /api/v1/users/{id}/overrides", schedules.AddOverride)
	mux.HandleFunc("DELETE /api/v1/users/{id}/overrides/{date}", schedules.DeleteOverrides)
}
