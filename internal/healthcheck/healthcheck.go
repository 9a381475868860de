// Package healthcheck exposes the standard gRPC health service for orchestrators.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "shsh.practice.Panel"

const stopGrace = 5 * time.Second

// Pinger is a dependency whose reachability decides serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves grpc.health.v1 on its own listener.
type Server struct {
	gs *grpc.Server
	hs *health.Server
}

// New creates a health server that reports NOT_SERVING until SetServing(true).
func New() *Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(recoverUnary))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	s := &Server{gs: gs, hs: hs}
	s.SetServing(false)
	return s
}

// Serve blocks serving on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// SetServing flips the overall and the named service status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus("", st)
	s.hs.SetServingStatus(ServiceName, st)
}

// Watch pings dep right away and then every interval, reporting its
// reachability until ctx ends. The first result is always applied.
func (s *Server) Watch(ctx context.Context, dep Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		first, healthy := true, false
		for {
			pctx, cancel := context.WithTimeout(ctx, interval)
			err := dep.Ping(pctx)
			cancel()
			if ok := err == nil; first || ok != healthy {
				if !ok {
					slog.Warn("Health dependency unreachable", "error", err)
				} else if !first {
					slog.Info("Health dependency recovered")
				}
				first, healthy = false, ok
				s.SetServing(ok)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Shutdown reports NOT_SERVING and stops the server, forcing it after a grace period.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.gs.Stop()
	}
}

func recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gRPC handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
