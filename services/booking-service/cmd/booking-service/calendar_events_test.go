package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	users []string
	err   error
}

func (c *recordingCache) Invalidate(_ context.Context, userID string) error {
	c.users = append(c.users, userID)
	return c.err
}

type recordingTokens struct{ forgotten []string }

func (t *recordingTokens) Forget(userID string) { t.forgotten = append(t.forgotten, userID) }

func TestCalendarChangedHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &recordingCache{}
	tokens := &recordingTokens{}
	h := newCalendarChangedHandler(cache, tokens, logger)

	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{"user_id":" u1 "}`)}))
	assert.Equal(t, []string{"u1"}, cache.users)
	assert.Equal(t, []string{"u1"}, tokens.forgotten)

	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`not json`)}))
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{}`)}))
	assert.Len(t, cache.users, 1)

	cache.err = errors.New("redis down")
	assert.Error(t, h(context.Background(), kafka.Message{Value: []byte(`{"user_id":"u2"}`)}))
}

func TestCalendarChangedHandlerWithoutCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newCalendarChangedHandler(nil, nil, logger)
	assert.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{"user_id":"u1"}`)}))
}
