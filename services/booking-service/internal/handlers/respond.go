package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps the model error taxonomy to a response. Unknown errors are logged and hidden.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, model.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, model.ErrSlotUnavailable.Error())
	case errors.Is(err, model.ErrAlreadyCancelled):
		writeError(w, http.StatusBadRequest, "booking is already cancelled")
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
