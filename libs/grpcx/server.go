package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server that always carries the standard health service.
type Server struct {
	*grpc.Server
	Health *health.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryRequestID(), UnaryAccessLog(logger)),
	}
	opts = append(opts, extra...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{Server: srv, Health: hs, logger: logger}
}

// Serve blocks until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server starting", "addr", addr)
		errCh <- s.Server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		s.Stop()
	}
	s.logger.Info("grpc server stopped")
	return nil
}

// WatchReadiness mirrors the result of check into the overall health status until ctx is done.
func (s *Server) WatchReadiness(ctx context.Context, every time.Duration, check func(context.Context) error) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(checkCtx)
		cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("readiness check failed", "err", err)
		}
		s.Health.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
