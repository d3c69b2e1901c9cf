// Package httpx holds the HTTP middleware shared by slotbook services.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that Chain(h, a, b) serves requests as a(b(h)). Nil entries are skipped.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == nil {
			continue
		}
		h = m[i](h)
	}
	return h
}

// WithBodyLimit caps request bodies; reads past the limit fail and the JSON decoders report a bad body.
func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds handler run time. Booking requests wait on row locks, so this is the upper bound a
// guest sees before a 503.
func WithTimeout(d time.Duration) Middleware {
	body, _ := json.Marshal(map[string]string{"error": "request timed out"})
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, string(body))
	}
}

// writeError matches the error body of the API handlers.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
