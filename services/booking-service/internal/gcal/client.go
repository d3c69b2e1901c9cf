// Package gcal builds per-user Google Calendar API clients from stored OAuth tokens.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// ErrNotConnected means the user has no Google account linked.
var ErrNotConnected = errors.New("google calendar not connected")

// TokenStore loads a user's stored Google token. It returns model.ErrNotFound when none exists.
type TokenStore interface {
	GoogleToken(ctx context.Context, userID string) (*oauth2.Token, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	// QPS caps outbound API calls across all users; zero disables throttling.
	QPS float64
	// TokenTTL bounds how long a user's token source is reused before the stored token is re-read.
	TokenTTL time.Duration
	// Endpoint overrides the API base URL.
	Endpoint string
}

type Client struct {
	oauth    *oauth2.Config
	tokens   TokenStore
	limiter  *rate.Limiter
	endpoint string
	cache    *tokenCache
}

func NewClient(cfg Config, tokens TokenStore) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), int(cfg.QPS)+1)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		},
		tokens:   tokens,
		limiter:  limiter,
		endpoint: cfg.Endpoint,
		cache:    newTokenCache(cfg.TokenTTL, time.Now),
	}
}

// Service returns a calendar client acting as userID. It waits on the shared rate limiter first.
func (c *Client) Service(ctx context.Context, userID string) (*calendar.Service, error) {
	ts, err := c.tokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

func (c *Client) tokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	if ts, ok := c.cache.get(userID); ok {
		return ts, nil
	}
	tok, err := c.tokens.GoogleToken(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}
	// Refreshes outlive the request, so they must not use its context.
	ts := c.oauth.TokenSource(context.Background(), tok)
	c.cache.put(userID, ts)
	return ts, nil
}

// Forget drops the cached token source for userID.
func (c *Client) Forget(userID string) {
	c.cache.delete(userID)
}

type tokenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]tokenEntry
}

type tokenEntry struct {
	ts      oauth2.TokenSource
	expires time.Time
}

func newTokenCache(ttl time.Duration, now func() time.Time) *tokenCache {
	return &tokenCache{ttl: ttl, now: now, entries: map[string]tokenEntry{}}
}

func (c *tokenCache) get(userID string) (oauth2.TokenSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, userID)
		return nil, false
	}
	return e.ts, true
}

func (c *tokenCache) put(userID string, ts oauth2.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = tokenEntry{ts: ts, expires: c.now().Add(c.ttl)}
}

func (c *tokenCache) delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
