package busy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
)

// Fetcher reads busy time for many participants at once, one goroutine each.
// A participant whose read fails or exceeds the timeout is busy for the whole range.
type Fetcher struct {
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(source Source, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{source: source, timeout: timeout, logger: logger}
}

func (f *Fetcher) FetchBusyIntervals(ctx context.Context, userIDs []string, start, end time.Time) map[string][]interval.Interval {
	out := make(map[string][]interval.Interval, len(userIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := f.fetchOne(ctx, userID, start, end)
			mu.Lock()
			out[userID] = got
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, userID string, start, end time.Time) []interval.Interval {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	got, err := f.source.Busy(ctx, userID, start, end)
	if err == nil {
		return got
	}

	provider := "unknown"
	var perr *ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		provider = "timeout"
	case errors.As(err, &perr):
		provider = perr.Provider
	}
	metrics.IncProviderDegraded(provider)
	f.logger.Warn("busy fetch failed; treating participant as busy",
		"participant_id", userID,
		"provider", provider,
		"err", err,
	)
	return []interval.Interval{{Start: start, End: end}}
}
