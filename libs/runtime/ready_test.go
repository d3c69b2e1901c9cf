package runtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyzReportsFailingChecks(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis: connection refused") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}

func TestCombineChecks(t *testing.T) {
	ok := CombineChecks(ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }})
	if err := ok(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	bad := CombineChecks(ReadyCheck{Check: func(context.Context) error { return errors.New("down") }})
	if err := bad(context.Background()); err == nil || err.Error() != "dependency: down" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"noise":   slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	newLogger(&buf, "booking-service", "debug", "text").Debug("probe")
	if !strings.Contains(buf.String(), "service=booking-service") || !strings.Contains(buf.String(), "msg=probe") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
