// Package server поднимает gRPC-сервер со стандартным протоколом проверки
// состояния grpc.health.v1. Статус сервиса обновляется по результату
// периодического пинга базы данных.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
)

// ServiceName задает имя сервиса в ответах health-протокола.
const ServiceName = "learnhub"

// Pinger проверяет доступность базы данных.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer отдает состояние сервиса по gRPC.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	db         Pinger
	interval   time.Duration
	log        *slog.Logger
}

// NewHealthServer создает сервер. До первой проверки статус NOT_SERVING.
func NewHealthServer(db Pinger, interval time.Duration, log *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		grpcServer: srv,
		health:     hs,
		db:         db,
		interval:   interval,
		log:        log,
	}
}

// Check проверяет базу данных и выставляет статус.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("database ping failed", slog.String("op", "server.HealthServer.Check"), sl.Err(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// Serve слушает addr до отмены ctx, параллельно обновляя статус.
func (s *HealthServer) Serve(ctx context.Context, addr string) error {
	const op = "server.HealthServer.Serve"

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener работает как Serve, но на готовом listener.
func (s *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	const op = "server.HealthServer.Serve"

	go s.watch(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gRPC health service listening on", slog.String("address", lis.Addr().String()))
		errCh <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
}

func (s *HealthServer) watch(ctx context.Context) {
	s.Check(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}
