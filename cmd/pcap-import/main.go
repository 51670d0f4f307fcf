package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowattr-lab/internal/app"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/infrastructure/clickhouse"
	"flowattr-lab/internal/infrastructure/database"
	"flowattr-lab/internal/infrastructure/database/repository"
	"flowattr-lab/internal/infrastructure/pcapfile"
	"flowattr-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	hostname := flag.String("hostname", "", "observer hostname stamped on imported records")
	observerIPs := flag.String("observer-ips", "", "comma separated observer addresses")
	idle := flag.Duration("idle-timeout", pcapfile.DefaultIdleTimeout, "flow idle timeout")
	batchSize := flag.Int("batch-size", 5000, "ClickHouse insert batch size")
	dryRun := flag.Bool("dry-run", false, "parse captures without writing records")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pcap-import [flags] capture.pcap...")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg)
	logger.SetGlobal(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reader := pcapfile.NewReader(pcapfile.Options{
		IdleTimeout:      *idle,
		ObserverHostname: *hostname,
		ObserverIPs:      splitList(*observerIPs),
	}, log)

	var sink recordSink
	if !*dryRun {
		var closeSink func()
		sink, closeSink, err = openSink(ctx, cfg, *batchSize, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open record sink")
		}
		defer closeSink()
	}

	start := time.Now()
	result, err := importFiles(ctx, reader, sink, files, log)
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		cancel()
		os.Exit(1)
	}

	log.Info().
		Int("files", len(files)).
		Int("packets", result.Packets).
		Int("flows", result.Flows).
		Int("written", result.Written).
		Dur("duration", time.Since(start)).
		Msg("import complete")
}

// openSink picks ClickHouse when enabled, otherwise PostgreSQL
func openSink(ctx context.Context, cfg *config.Config, batchSize int, log *logger.Logger) (recordSink, func(), error) {
	if cfg.ClickHouse.Enabled {
		conn, table, err := clickhouse.Connect(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, nil, err
		}
		closeConn := func() {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close clickhouse connection")
			}
		}
		return clickhouse.NewWriter(conn, table, batchSize, log), closeConn, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgresSink{repo: repository.NewFlowRecordRepository(db.Pool())}, db.Close, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
