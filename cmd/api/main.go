package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"flowattr-lab/internal/api"
	"flowattr-lab/internal/api/handlers"
	apimiddleware "flowattr-lab/internal/api/middleware"
	"flowattr-lab/internal/app"
	"flowattr-lab/internal/config"
	grpchealth "flowattr-lab/internal/grpc/health"
	"flowattr-lab/internal/streaming"
	"flowattr-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg)
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("source", cfg.Ingest.Source).
		Msg("starting flow attribution API")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize runtime")
	}
	defer rt.Close()

	// Events published by the attributor worker reach local clients via NATS
	if err := rt.EventBus.Relay(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to relay NATS events, streaming local events only")
	}
	wsHub := streaming.NewWebSocketHub(rt.EventBus, log)
	go wsHub.Run(ctx)

	// Dependency health for /ready and gRPC
	checks := make(map[string]handlers.HealthChecker)
	grpcChecks := make(map[string]grpchealth.Checker)
	if rt.DB != nil {
		pg := handlers.HealthFunc(rt.DB.Ping)
		checks["postgres"] = pg
		grpcChecks["postgres"] = pg
	}
	if rt.Cache != nil {
		checks["redis"] = rt.Cache
		grpcChecks["redis"] = rt.Cache
	}
	if rt.Graph != nil {
		checks["neo4j"] = rt.Graph
	}

	deps := handlers.Dependencies{
		Config:      cfg.Attribution,
		Version:     cfg.App.Version,
		Attribution: rt.Attribution,
		Tracer:      rt.Tracer,
		Actors:      rt.Stores.Actors,
		Hub:         wsHub,
		EventBus:    rt.EventBus,
		Checks:      checks,
		Logger:      log,
	}
	if rt.Graph != nil {
		deps.GraphStore = rt.Graph
	}
	h := handlers.NewHandlers(deps)

	var limits apimiddleware.RateLimitStore
	if rt.Cache != nil {
		limits = rt.Cache
	}
	router := api.NewRouter(*cfg, h, limits, rt.Metrics, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	monitor := grpchealth.NewMonitor(grpcChecks, grpchealth.DefaultInterval, log)
	monitor.Register(grpcServer)
	go monitor.Run(ctx)

	go func() {
		log.Info().Str("addr", grpcListener.Addr().String()).Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background services
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}
