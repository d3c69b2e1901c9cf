package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDMetadataKey carries the request id over gRPC, matching the HTTP X-Request-Id header.
const RequestIDMetadataKey = "x-request-id"

type ctxKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// UnaryRequestID adopts the caller's x-request-id or mints one, and echoes it in the response header.
func UnaryRequestID() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var id string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(context.WithValue(ctx, ctxKey{}, id), req)
	}
}

// UnaryAccessLog logs each call with its status code. Health probes log at DEBUG.
func UnaryAccessLog(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		level := slog.LevelInfo
		if info.FullMethod == "/grpc.health.v1.Health/Check" {
			level = slog.LevelDebug
		}
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc request",
			"request_id", RequestIDFromContext(ctx),
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
