package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type switchPinger struct {
	down atomic.Bool
}

func (p *switchPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthServer_Check(t *testing.T) {
	p := &switchPinger{}
	s := NewHealthServer(p, time.Second, newNoopLogger())

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Check(context.Background()))

	p.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Check(context.Background()))
}

func TestHealthServer_OverGRPC(t *testing.T) {
	p := &switchPinger{}
	s := NewHealthServer(p, 20*time.Millisecond, newNoopLogger())

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	assert.Eventually(t, func() bool {
		return status() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	p.down.Store(true)
	assert.Eventually(t, func() bool {
		return status() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
