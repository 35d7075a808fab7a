package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/vanet-simulator/core"
	"github.com/signalsfoundry/vanet-simulator/internal/config"
	"github.com/signalsfoundry/vanet-simulator/internal/logging"
	"github.com/signalsfoundry/vanet-simulator/internal/observability"
	"github.com/signalsfoundry/vanet-simulator/phy"
	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

type serveOptions struct {
	scenarioPath string
	grpcAddr     string
	metricsAddr  string
	tick         time.Duration
	speedup      bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a scenario in real time with metrics and health endpoints",
		Long: "serve paces a scenario against the wall clock, exposes Prometheus metrics on /metrics " +
			"and a gRPC health service that reports SERVING until the scenario ends.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, root.logger(cmd), prometheus.DefaultRegisterer)
		},
	}
	cmd.Flags().StringVarP(&opts.scenarioPath, "scenario", "s", defaultScenario, "path to the scenario YAML file")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", ":50051", "TCP address the gRPC health server listens on")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	cmd.Flags().DurationVar(&opts.tick, "tick", 100*time.Millisecond, "simulation step per wall-clock tick")
	cmd.Flags().BoolVar(&opts.speedup, "accelerated", false, "advance ticks without waiting for the wall clock")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions, log logging.Logger, reg prometheus.Registerer) error {
	sc, err := config.Load(opts.scenarioPath)
	if err != nil {
		return err
	}

	tracing := observability.TracingConfigFromEnv()
	tracing.Scenario = sc.Name
	shutdown, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	phyMetrics, err := observability.NewPhyCollector(reg)
	if err != nil {
		return err
	}
	knowledgeMetrics, err := observability.NewKnowledgeCollector(reg)
	if err != nil {
		return err
	}
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}

	eng, err := core.NewEngine(ctx, sc,
		core.WithLogger(log),
		core.WithPhyMetrics(func(vehicle string) phy.MetricsRecorder { return phyMetrics.ForNode(vehicle) }),
		core.WithKnowledgeMetrics(knowledgeMetrics),
	)
	if err != nil {
		return err
	}

	healthSrv := health.NewServer()
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(rpcMetrics.UnaryServerInterceptor()),
	)
	healthpb.RegisterHealthServer(server, healthSrv)

	lis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}

	if metricsSrv := serveMetrics(opts.metricsAddr, phyMetrics, log); metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}
	log.Info(ctx, "starting gRPC health server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.String("error", err.Error()))
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	mode := timectrl.RealTime
	if opts.speedup {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(eng, opts.tick, mode)
	summary, runErr := eng.Drive(ctx, tc)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if summary != nil {
		tx, rxOk, drops := summary.Totals()
		log.Info(ctx, "scenario finished",
			logging.Float64("sim_time_s", summary.SimTime),
			logging.Int("tx", tx),
			logging.Int("rx_ok", rxOk),
			logging.Int("drops", drops),
		)
	}

	if runErr == nil {
		// Keep the endpoints up for scraping until interrupted.
		<-ctx.Done()
	}

	log.Info(context.Background(), "shutting down")
	server.GracefulStop()
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.PhyCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
