package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flowattr-lab/internal/app"
	"flowattr-lab/internal/config"
	"flowattr-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	once := flag.Bool("once", false, "run a single attribution and exit")
	flag.Parse()

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
		Str("source", cfg.Ingest.Source).
		Dur("interval", cfg.Attribution.Interval).
		Dur("window", cfg.Attribution.Window).
		Msg("starting attributor worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize runtime")
	}
	defer rt.Close()

	var locks locker
	if rt.Cache != nil {
		locks = redisLocker{cache: rt.Cache, ttl: cfg.Worker.LockTTL}
	} else {
		log.Warn().Msg("Redis unavailable, running without distributed lock")
	}

	worker := NewAttributorWorker(rt.Attribution, locks, cfg.Worker, cfg.Attribution, log)

	if *once {
		if err := worker.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("attribution run failed")
			rt.Close()
			os.Exit(1)
		}
		return
	}

	go worker.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down attributor worker...")
	cancel()
}
