package busy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
)

// Cache is a read-through Redis cache in front of a Source. Only successful reads are stored, so a
// failing calendar is retried on the next query. Redis errors fall through to the source.
type Cache struct {
	rdb    *redis.Client
	source Source
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCache(rdb *redis.Client, source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{rdb: rdb, source: source, ttl: ttl, prefix: "busy", logger: logger}
}

type cachedInterval struct {
	Start time.Time `json:"s"`
	End   time.Time `json:"e"`
}

func (c *Cache) Name() string {
	return c.source.Name()
}

func (c *Cache) Busy(ctx context.Context, userID string, start, end time.Time) ([]interval.Interval, error) {
	key := c.key(userID, start, end)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []cachedInterval
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			out := make([]interval.Interval, 0, len(cached))
			for _, ci := range cached {
				out = append(out, interval.Interval{Start: ci.Start, End: ci.End})
			}
			return out, nil
		}
		c.logger.Warn("busy cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("busy cache read failed", "err", err)
	}

	got, err := c.source.Busy(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	cached := make([]cachedInterval, 0, len(got))
	for _, iv := range got {
		cached = append(cached, cachedInterval{Start: iv.Start, End: iv.End})
	}
	if payload, err := json.Marshal(cached); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("busy cache write failed", "err", err)
		}
	}
	return got, nil
}

// Invalidate removes every cached range for userID.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("%s:%s:*", c.prefix, userID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Ping is a readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) key(userID string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%d", c.prefix, userID, start.Unix(), end.Unix())
}
