// Package healthgrpc exposes persistence health over the standard gRPC
// health checking protocol.
package healthgrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service that tracks the persistence layer. The
// empty service name reports process liveness and is always SERVING.
const ServiceName = "autodoor.persistence"

const defaultSyncInterval = 2 * time.Second

type Reporter interface {
	Healthy() bool
}

type Server struct {
	addr     string
	src      Reporter
	interval time.Duration
	log      zerolog.Logger

	grpc   *grpc.Server
	health *health.Server
}

func New(addr string, src Reporter, interval time.Duration, logger zerolog.Logger) *Server {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		addr:     addr,
		src:      src,
		interval: interval,
		log:      logger.With().Str("component", "grpc-health").Logger(),
		grpc:     gs,
		health:   hs,
	}
	s.Sync()
	return s
}

// Sync copies the current persistence health into the gRPC status.
func (s *Server) Sync() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.src.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	s.log.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case <-ticker.C:
			s.Sync()
		}
	}
}
