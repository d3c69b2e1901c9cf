package main

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
)

// engines holds the availability engine that serves reads and the gate the write path re-checks with.
// The gate always asks the calendars directly, so a stale cache entry cannot let a booking through.
type engines struct {
	reads *availability.Engine
	gate  *availability.Engine
	cache *busy.Cache
}

// newEngines caches busy time for reads only when rdb is non-nil.
func newEngines(store availability.Store, source busy.Source, rdb *redis.Client, cacheTTL, fetchTimeout time.Duration, logger *slog.Logger, opts ...availability.Option) engines {
	gate := availability.NewEngine(store, busy.NewFetcher(source, fetchTimeout, logger), logger, opts...)
	if rdb == nil {
		return engines{reads: gate, gate: gate}
	}
	cache := busy.NewCache(rdb, source, cacheTTL, logger)
	return engines{
		reads: availability.NewEngine(store, busy.NewFetcher(cache, fetchTimeout, logger), logger, opts...),
		gate:  gate,
		cache: cache,
	}
}
