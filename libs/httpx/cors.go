package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for browser booking widgets.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// ExposedHeaders are response headers readable by scripts, e.g. Idempotency-Replayed.
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Idempotency-Key", RequestIDHeader}
)

// WithCORS answers preflights and decorates responses for allowed origins. With no origins configured it
// returns nil, which Chain skips.
func WithCORS(p CORSPolicy) Middleware {
	origins := cleanList(p.AllowedOrigins)
	if len(origins) == 0 {
		return nil
	}
	methods := cleanList(p.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cleanList(p.AllowedHeaders)
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	expose := strings.Join(cleanList(p.ExposedHeaders), ", ")
	wildcard := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || !(wildcard || slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) })) {
				next.ServeHTTP(w, r)
				return
			}

			// A literal "*" is not valid alongside credentials, so the origin is echoed instead.
			if wildcard && !p.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if p.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if expose != "" {
				h.Set("Access-Control-Expose-Headers", expose)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			if p.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(p.MaxAge/time.Second)))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
