// Package health exposes the relay status through the standard gRPC health
// checking protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// Server serves grpc.health.v1.Health for the whole process and for service.
type Server struct {
	service  string
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
}

// Listen binds address and registers the health service, NOT_SERVING at first.
func Listen(ctx context.Context, address, service string) (*Server, error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	s := &Server{
		service:  service,
		listener: lis,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
	}

	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// SetServing flips the reported status. It is safe for concurrent use.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve blocks until ctx is canceled or the server fails.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down health server")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		close(done)
	}()

	logger.InfoKV(ctx, "Health server listening", "address", s.Addr().String())

	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}

	<-done
	logger.Info(ctx, "Health server stopped")

	return nil
}
