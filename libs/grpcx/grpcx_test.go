package grpcx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestUnaryRequestID(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/slotbook.Test/Call"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-1"))
	_, err := UnaryRequestID()(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "req-1", seen)

	_, err = UnaryRequestID()(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Len(t, seen, 36)
}

func TestUnaryAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	info := &grpc.UnaryServerInfo{FullMethod: "/slotbook.Test/Call"}

	_, err := UnaryAccessLog(logger)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "code=Unavailable")
}

func TestWatchReadinessMirrorsCheck(t *testing.T) {
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := errors.New("db down")
	var checkErr error = failing
	done := make(chan struct{})
	go func() {
		srv.WatchReadiness(ctx, 10*time.Millisecond, func(context.Context) error { return checkErr })
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := srv.Health.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
