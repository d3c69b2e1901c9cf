package gcal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type mapTokens struct {
	tokens map[string]*oauth2.Token
	loads  int
}

func (m *mapTokens) GoogleToken(_ context.Context, userID string) (*oauth2.Token, error) {
	m.loads++
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return tok, nil
}

func TestTokenSourceCachedUntilTTL(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &mapTokens{tokens: map[string]*oauth2.Token{
		"u1": {AccessToken: "abc", Expiry: now.Add(time.Hour)},
	}}
	c := NewClient(Config{TokenTTL: time.Minute}, store)
	c.cache = newTokenCache(time.Minute, func() time.Time { return now })

	_, err := c.tokenSource(context.Background(), "u1")
	require.NoError(t, err)
	_, err = c.tokenSource(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)

	now = now.Add(2 * time.Minute)
	_, err = c.tokenSource(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)

	c.Forget("u1")
	_, err = c.tokenSource(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, store.loads)
}

func TestServiceNotConnected(t *testing.T) {
	c := NewClient(Config{}, &mapTokens{tokens: map[string]*oauth2.Token{}})
	_, err := c.Service(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotConnected)
}
