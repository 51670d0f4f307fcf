package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	NATS        NATSConfig        `mapstructure:"nats"`
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Attribution AttributionConfig `mapstructure:"attribution"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

// ClickHouseConfig points at a columnar flow record table
type ClickHouseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SQLiteConfig points at exported beats databases
type SQLiteConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PacketbeatPath  string `mapstructure:"packetbeat_path"`
	JournalbeatPath string `mapstructure:"journalbeat_path"`
	FilebeatPath    string `mapstructure:"filebeat_path"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TLS       bool   `mapstructure:"tls"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Neo4jConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	URI                string `mapstructure:"uri"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	Database           string `mapstructure:"database"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxLifetimeMinutes int    `mapstructure:"max_lifetime_minutes"`
	BatchSize          int    `mapstructure:"batch_size"`
}

type NATSConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	URL        string             `mapstructure:"url"`
	StreamName string             `mapstructure:"stream_name"`
	Subjects   NATSSubjectsConfig `mapstructure:"subjects"`
}

type NATSSubjectsConfig struct {
	RunCompleted       string `mapstructure:"run_completed"`
	ChainReconstructed string `mapstructure:"chain_reconstructed"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// IngestConfig selects where flow records come from and which ones to drop
type IngestConfig struct {
	Source      string        `mapstructure:"source"` // postgres, clickhouse, sqlite or fixture
	FixturePath string        `mapstructure:"fixture_path"`
	Exclude     ExcludeConfig `mapstructure:"exclude"`
}

// ExcludeConfig holds glob patterns; a record matching any of them is dropped
type ExcludeConfig struct {
	ProcessNames      []string `mapstructure:"process_names"`
	Executables       []string `mapstructure:"executables"`
	ObserverHostnames []string `mapstructure:"observer_hostnames"`
	UserAgents        []string `mapstructure:"user_agents"`
	ObserverGeoNames  []string `mapstructure:"observer_geo_names"`
}

type NamingConfig struct {
	AddressPrefix string `mapstructure:"address_prefix"`
	NamePrefix    string `mapstructure:"name_prefix"`
}

type AttributionConfig struct {
	OriginPrefixes    []string      `mapstructure:"origin_prefixes"`
	RootHost          string        `mapstructure:"root_host"`
	VPNHostname       string        `mapstructure:"vpn_hostname"`
	Naming            NamingConfig  `mapstructure:"naming"`
	ExcludePrefixes   []string      `mapstructure:"exclude_prefixes"`
	MatchPolicy       string        `mapstructure:"match_policy"`
	MaxPathLength     int           `mapstructure:"max_path_length"`
	MaxPaths          int           `mapstructure:"max_paths"`
	MaxHopCandidates  int           `mapstructure:"max_hop_candidates"`
	SessionMergeGap   time.Duration `mapstructure:"session_merge_gap"`
	PruneDetached     bool          `mapstructure:"prune_detached"`
	MergeUnattributed bool          `mapstructure:"merge_unattributed"`
	AuditOrigins      bool          `mapstructure:"audit_origins"`
	AuditWorkers      int           `mapstructure:"audit_workers"`
	Window            time.Duration `mapstructure:"window"`
	Interval          time.Duration `mapstructure:"interval"`
	ServicePorts      []int         `mapstructure:"service_ports"`
}

type WorkerConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockRefresh    time.Duration `mapstructure:"lock_refresh"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
}

// DefaultServicePorts are well-known ports reported in summary graphs
var DefaultServicePorts = []int{
	20, 21, 22, 23, 25, 53, 67, 68, 69, 80, 110, 119, 123, 143, 161, 162,
	389, 443, 445, 465, 514, 587, 636, 993, 995, 1433, 1521, 1812, 1813,
	3306, 3389, 5190, 5432, 5900, 6379, 8080, 8443,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flowattr-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8090)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "flowattr")
	v.SetDefault("database.dbname", "flowattr")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.table", "flow_records")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "flowattr:")

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.max_connections", 50)
	v.SetDefault("neo4j.max_lifetime_minutes", 60)
	v.SetDefault("neo4j.batch_size", 500)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "FLOWATTR_EVENTS")
	v.SetDefault("nats.subjects.run_completed", "attribution.run.completed")
	v.SetDefault("nats.subjects.chain_reconstructed", "attribution.chain.reconstructed")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("ratelimit.requests_per_minute", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ingest.source", "postgres")
	v.SetDefault("ingest.exclude.observer_hostnames", []string{"*buckeye"})
	v.SetDefault("ingest.exclude.executables", []string{"/tmp/*", "GCEWindowsAgent.exe"})
	v.SetDefault("ingest.exclude.process_names", []string{"*beat*", "google*"})
	v.SetDefault("ingest.exclude.user_agents", []string{"Mozilla/5.0 (X11; Linux x86_64; rv:26.0) Gecko/20100101 Firefox/26.0"})
	v.SetDefault("ingest.exclude.observer_geo_names", []string{"blueprint"})

	v.SetDefault("attribution.origin_prefixes", []string{"w1-s"})
	v.SetDefault("attribution.root_host", "10.0.0.2")
	v.SetDefault("attribution.naming.address_prefix", "192.168.0.")
	v.SetDefault("attribution.naming.name_prefix", "w1-s")
	v.SetDefault("attribution.exclude_prefixes", []string{"192.168.0.0/24", "w1-s"})
	v.SetDefault("attribution.match_policy", "strict")
	v.SetDefault("attribution.max_path_length", 8)
	v.SetDefault("attribution.max_paths", 1000)
	v.SetDefault("attribution.max_hop_candidates", 10000)
	v.SetDefault("attribution.session_merge_gap", 300*time.Second)
	v.SetDefault("attribution.prune_detached", false)
	v.SetDefault("attribution.merge_unattributed", true)
	v.SetDefault("attribution.audit_origins", false)
	v.SetDefault("attribution.audit_workers", 4)
	v.SetDefault("attribution.window", time.Hour)
	v.SetDefault("attribution.interval", 15*time.Minute)
	v.SetDefault("attribution.service_ports", DefaultServicePorts)

	v.SetDefault("worker.lock_ttl", 5*time.Minute)
	v.SetDefault("worker.lock_refresh", time.Minute)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.base_retry_delay", 30*time.Second)
	v.SetDefault("worker.max_retry_delay", 5*time.Minute)
}

// Load reads configuration from file and environment variables. Without an
// explicit path a missing config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flowattr-lab")
	}

	v.SetEnvPrefix("FLOWATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper doesn't auto-bind nested keys it has no default for
	v.BindEnv("redis.password", "FLOWATTR_REDIS_PASSWORD")
	v.BindEnv("database.password", "FLOWATTR_DATABASE_PASSWORD")
	v.BindEnv("clickhouse.password", "FLOWATTR_CLICKHOUSE_PASSWORD")
	v.BindEnv("neo4j.password", "FLOWATTR_NEO4J_PASSWORD")
	v.BindEnv("sqlite.packetbeat_path", "FLOWATTR_SQLITE_PACKETBEAT_PATH")
	v.BindEnv("sqlite.journalbeat_path", "FLOWATTR_SQLITE_JOURNALBEAT_PATH")
	v.BindEnv("sqlite.filebeat_path", "FLOWATTR_SQLITE_FILEBEAT_PATH")
	v.BindEnv("ingest.fixture_path", "FLOWATTR_INGEST_FIXTURE_PATH")
	v.BindEnv("auth.api_keys", "FLOWATTR_AUTH_API_KEYS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate rejects settings the attribution engine cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Attribution.MatchPolicy {
	case "", "strict", "transport_dport", "transport":
	default:
		errs = append(errs, fmt.Errorf("attribution.match_policy: unknown policy %q", c.Attribution.MatchPolicy))
	}
	if len(c.Attribution.OriginPrefixes) == 0 {
		errs = append(errs, errors.New("attribution.origin_prefixes: at least one prefix is required"))
	}
	for _, p := range c.Attribution.OriginPrefixes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("attribution.origin_prefixes: empty prefix"))
			break
		}
	}
	if c.Attribution.Window <= 0 {
		errs = append(errs, errors.New("attribution.window: must be positive"))
	}
	if c.Attribution.MaxHopCandidates < 0 || c.Attribution.MaxPathLength < 0 || c.Attribution.MaxPaths < 0 {
		errs = append(errs, errors.New("attribution: path and candidate limits cannot be negative"))
	}

	switch c.Ingest.Source {
	case "postgres", "clickhouse", "sqlite", "fixture":
	default:
		errs = append(errs, fmt.Errorf("ingest.source: unknown source %q", c.Ingest.Source))
	}
	if c.Ingest.Source == "fixture" && c.Ingest.FixturePath == "" {
		errs = append(errs, errors.New("ingest.fixture_path: required for the fixture source"))
	}
	if c.Ingest.Source == "clickhouse" && !c.ClickHouse.Enabled {
		errs = append(errs, errors.New("ingest.source: clickhouse is not enabled"))
	}
	if c.Ingest.Source == "sqlite" && !c.SQLite.Enabled {
		errs = append(errs, errors.New("ingest.source: sqlite is not enabled"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
