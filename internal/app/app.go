// Package app wires configuration, infrastructure and services into a
// runnable attribution runtime shared by the commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/internal/infrastructure/cache"
	"flowattr-lab/internal/infrastructure/clickhouse"
	"flowattr-lab/internal/infrastructure/database"
	"flowattr-lab/internal/infrastructure/database/repository"
	"flowattr-lab/internal/infrastructure/fixture"
	"flowattr-lab/internal/infrastructure/graph"
	"flowattr-lab/internal/infrastructure/sqlite"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/internal/streaming"
	"flowattr-lab/pkg/logger"
)

// NewLogger builds the process logger from configuration
func NewLogger(cfg *config.Config) *logger.Logger {
	if cfg.IsProduction() {
		return logger.NewProduction()
	}
	return logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
}

// Stores are the data sources selected by ingest.source. Conntrack, Sessions
// and Actors may be nil when the source cannot provide them; tracing is then
// unavailable.
type Stores struct {
	Records   []services.FlowRecordStore
	Conntrack services.ConntrackStore
	Sessions  services.SessionEventStore
	Actors    services.ActorStore

	closers []func()
}

// Close releases every store connection
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Traceable reports whether every store the flow tracer needs is present
func (s *Stores) Traceable() bool {
	return len(s.Records) > 0 && s.Conntrack != nil && s.Sessions != nil && s.Actors != nil
}

// OpenStores opens the stores of cfg.Ingest.Source. db may be nil unless
// the source is postgres; when present it backs whatever the source lacks.
func OpenStores(ctx context.Context, cfg *config.Config, db *database.PostgresDB, log *logger.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.Ingest.Source {
	case "postgres":
		if db == nil {
			return nil, errors.New("ingest source postgres requires a database connection")
		}
		s.Records = []services.FlowRecordStore{repository.NewFlowRecordRepository(db.Pool())}

	case "clickhouse":
		conn, table, err := clickhouse.Connect(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closeClickHouse(conn, log))
		s.Records = []services.FlowRecordStore{clickhouse.NewFlowStore(conn, table, log)}

	case "sqlite":
		if err := s.openSQLite(cfg.SQLite, log); err != nil {
			s.Close()
			return nil, err
		}

	case "fixture":
		store, err := fixture.Load(cfg.Ingest.FixturePath)
		if err != nil {
			return nil, err
		}
		s.Records = []services.FlowRecordStore{store}
		s.Conntrack = store
		s.Sessions = store
		s.Actors = store

	default:
		return nil, fmt.Errorf("unknown ingest source %q", cfg.Ingest.Source)
	}

	if db != nil {
		if s.Conntrack == nil {
			s.Conntrack = repository.NewConntrackRepository(db.Pool())
		}
		if s.Sessions == nil {
			s.Sessions = repository.NewSessionEventRepository(db.Pool())
		}
		if s.Actors == nil {
			s.Actors = repository.NewActorRepository(db.Pool())
		}
	}
	// Without a database the actor roster may still come from a fixture file
	if s.Actors == nil && cfg.Ingest.FixturePath != "" {
		roster, err := fixture.Load(cfg.Ingest.FixturePath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Actors = roster
	}

	log.Info().
		Str("source", cfg.Ingest.Source).
		Int("record_stores", len(s.Records)).
		Bool("traceable", s.Traceable()).
		Msg("stores opened")
	return s, nil
}

func (s *Stores) openSQLite(cfg config.SQLiteConfig, log *logger.Logger) error {
	open := func(path string) (*sql.DB, error) {
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to close sqlite database")
			}
		})
		return db, nil
	}

	if cfg.PacketbeatPath == "" {
		return errors.New("sqlite.packetbeat_path is required for the sqlite source")
	}
	packetbeat, err := open(cfg.PacketbeatPath)
	if err != nil {
		return err
	}
	s.Records = []services.FlowRecordStore{sqlite.NewPacketbeatStore(packetbeat)}

	if cfg.JournalbeatPath != "" {
		journalbeat, err := open(cfg.JournalbeatPath)
		if err != nil {
			return err
		}
		s.Conntrack = sqlite.NewJournalbeatStore(journalbeat)
	}
	if cfg.FilebeatPath != "" {
		filebeat, err := open(cfg.FilebeatPath)
		if err != nil {
			return err
		}
		s.Sessions = sqlite.NewFilebeatStore(filebeat)
	}
	return nil
}

func closeClickHouse(conn driver.Conn, log *logger.Logger) func() {
	return func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close clickhouse connection")
		}
	}
}

// Runtime holds every long-lived component of a process
type Runtime struct {
	Config      *config.Config
	Logger      *logger.Logger
	Metrics     *metrics.Registry
	DB          *database.PostgresDB
	Cache       *cache.RedisCache
	Graph       *graph.Repository
	EventBus    *streaming.EventBus
	Stores      *Stores
	Attribution *services.AttributionService
	Tracer      *services.FlowTracer

	closers []func()
}

// New connects the infrastructure named by cfg and builds the services.
// Only the stores of the ingest source are mandatory; PostgreSQL, Redis,
// Neo4j and NATS degrade to warnings when unreachable.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.DefaultRegistry(),
	}

	if cfg.Database.Host != "" {
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			if cfg.Ingest.Source == "postgres" {
				return nil, err
			}
			log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without database")
		} else {
			rt.DB = db
			rt.closers = append(rt.closers, db.Close)
			if err := db.Migrate(ctx); err != nil {
				rt.Close()
				return nil, err
			}
		}
	}

	if cfg.Redis.Host != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		} else {
			rt.Cache = redisCache
			rt.closers = append(rt.closers, func() { redisCache.Close() })
		}
	}

	if cfg.Neo4j.Enabled {
		client, err := graph.NewNeo4jClient(ctx, cfg.Neo4j, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Neo4j, graph export disabled")
		} else {
			rt.Graph = graph.NewRepository(client, log)
			rt.closers = append(rt.closers, func() { client.Close(context.Background()) })
		}
	}

	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		var err error
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, events stay local")
			natsPublisher = nil
		}
	}
	rt.EventBus = streaming.NewEventBus(natsPublisher, log)
	rt.closers = append(rt.closers, rt.EventBus.Close)

	stores, err := OpenStores(ctx, cfg, rt.DB, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Stores = stores
	rt.closers = append(rt.closers, stores.Close)

	if err := rt.buildServices(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) buildServices() error {
	cfg, log := rt.Config, rt.Logger
	filter := services.NewRecordFilter(cfg.Ingest.Exclude)

	svc, err := services.NewAttributionService(cfg.Attribution, rt.Stores.Records, filter, rt.Metrics, log)
	if err != nil {
		return err
	}
	publisher := streaming.NewEventBusPublisher(rt.EventBus)
	svc.SetEventPublisher(publisher)
	if rt.Graph != nil {
		svc.SetGraphStore(rt.Graph)
	}
	if rt.DB != nil {
		svc.SetRunRecorder(repository.NewRunRepository(rt.DB.Pool()))
	}
	if rt.Cache != nil {
		svc.SetRunCache(rt.Cache)
	}
	rt.Attribution = svc

	if !rt.Stores.Traceable() {
		log.Warn().Msg("conntrack, session or actor store missing, flow tracing disabled")
		return nil
	}
	sessions := services.NewSessionBuilder(rt.Stores.Sessions, cfg.Attribution.SessionMergeGap, log)
	tracer := services.NewFlowTracer(cfg.Attribution, rt.Stores.Records[0], rt.Stores.Conntrack,
		rt.Stores.Actors, sessions, filter, rt.Metrics, log)
	tracer.SetEventPublisher(publisher)
	if rt.Cache != nil {
		tracer.SetRunCache(rt.Cache)
	}
	rt.Tracer = tracer
	return nil
}

// Close releases every connection in reverse order of opening
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
	rt.Logger.Info().Msg("runtime closed")
}
