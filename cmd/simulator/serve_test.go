package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/vanet-simulator/internal/logging"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

func TestServeReleasesMetricsPortWhenGRPCListenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	metricsAddr := freeAddr(t)
	opts := &serveOptions{
		scenarioPath: sampleScenario,
		grpcAddr:     busy.Addr().String(),
		metricsAddr:  metricsAddr,
		tick:         time.Second,
		speedup:      true,
	}
	if err := serve(context.Background(), opts, logging.Noop(), prometheus.NewRegistry()); err == nil {
		t.Fatalf("expected error when the gRPC address is taken")
	}

	lis, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		t.Fatalf("metrics address still in use after failed serve: %v", err)
	}
	lis.Close()
}

func TestServeStopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := &serveOptions{
		scenarioPath: sampleScenario,
		grpcAddr:     "127.0.0.1:0",
		metricsAddr:  freeAddr(t),
		tick:         time.Second,
		speedup:      true,
	}
	if err := serve(ctx, opts, logging.Noop(), prometheus.NewRegistry()); err != nil {
		t.Fatalf("serve after cancel: %v", err)
	}
}
