// Package grpcserver runs the gRPC health endpoint used by orchestrators.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"restaurantOrdering/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "restaurantOrdering.OrderService"

const requestIDKey = "x-request-id"

// Server wraps the gRPC server and its health state.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

// Start listens on addr and serves the health service. Status starts as
// NOT_SERVING; call SetServing once storage is ready.
func Start(addr string, log *slog.Logger) (*Server, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	return &Server{srv: srv, health: hs, lis: lis}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// SetServing flips the reported status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks the service as not serving and stops gracefully, forcing a
// stop if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}

// loggingInterceptor carries x-request-id into the logger context and logs each call.
func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDKey); len(ids) > 0 {
				ctx = logger.WithRequestID(ctx, ids[0])
			}
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		if log != nil {
			log.DebugContext(ctx, "grpc_request", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		}
		return resp, err
	}
}
