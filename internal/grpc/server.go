package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/wes-support-chat/pkg/log"
)

// ServiceName is the name reported through the standard health service.
const ServiceName = "support.chat.v1.SupportChat"

// Pinger reports whether a dependency the service cannot run without is up.
type Pinger func(ctx context.Context) error

// HealthServer exposes grpc.health.v1 for orchestrators, driven by a
// periodic ping of the persistence layer.
type HealthServer struct {
	srv      *grpc.Server
	health   *health.Server
	ping     Pinger
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func NewHealthServer(logger zerolog.Logger, ping Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	return &HealthServer{
		srv:      s,
		health:   hs,
		ping:     ping,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Serve runs one ping, starts the watcher and blocks serving lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.Check(context.Background())
	go s.watch()
	return s.srv.Serve(lis)
}

// Check pings once and publishes the result.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ping != nil {
		pingCtx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.ping(pingCtx)
		cancel()
		if err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("health ping failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *HealthServer) watch() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Check(context.Background())
		}
	}
}

// GracefulStop flips every service to NOT_SERVING, then drains open calls.
func (s *HealthServer) GracefulStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.srv.GracefulStop()
	})
}

// StartHealthServer listens on addr and serves in the background.
func StartHealthServer(addr string, logger zerolog.Logger, ping Pinger, interval time.Duration) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewHealthServer(logger, ping, interval)
	go func() {
		l := log.L()
		l.Info().Str("address", addr).Msg("support-chat grpc health server listening")
		if err := s.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()

	return s, nil
}
