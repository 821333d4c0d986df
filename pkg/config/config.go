// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Ranking, Graph, HTTP, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Graph    GraphConfig    `yaml:"graph"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	ScoresReplaced  string `yaml:"scoresReplaced"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RankingConfig controls BM25 parameters, default fusion weights, pagination
// and the ranking service's local caches.
type RankingConfig struct {
	K1                float64       `yaml:"k1"`
	B                 float64       `yaml:"b"`
	PerPage           int           `yaml:"perPage"`
	DefaultAlpha      float64       `yaml:"defaultAlpha"`
	DefaultBeta       float64       `yaml:"defaultBeta"`
	DefaultGamma      float64       `yaml:"defaultGamma"`
	WeightTolerance   float64       `yaml:"weightTolerance"`
	StatsTTL          time.Duration `yaml:"statsTTL"`
	MetadataCacheSize int           `yaml:"metadataCacheSize"`
	MetadataCacheTTL  time.Duration `yaml:"metadataCacheTTL"`
	SnapshotRefresh   time.Duration `yaml:"snapshotRefresh"`
}

// GraphConfig controls the offline PageRank/HITS batch computation.
type GraphConfig struct {
	Damping       float64       `yaml:"damping"`
	MaxIterations int           `yaml:"maxIterations"`
	Tolerance     float64       `yaml:"tolerance"`
	Timeout       time.Duration `yaml:"timeout"`
}

// HTTPConfig holds boundary concerns of the public search endpoint.
type HTTPConfig struct {
	AllowOrigins      []string `yaml:"allowOrigins"`
	RequestsPerMinute int      `yaml:"requestsPerMinute"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry tracing (sample rate, endpoint).
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the ranking engine cannot run with.
func (c *Config) Validate() error {
	if c.Ranking.PerPage < 1 {
		return fmt.Errorf("ranking.perPage must be >= 1, got %d", c.Ranking.PerPage)
	}
	if c.Ranking.K1 < 0 || c.Ranking.B < 0 || c.Ranking.B > 1 {
		return fmt.Errorf("invalid BM25 parameters k1=%v b=%v", c.Ranking.K1, c.Ranking.B)
	}
	if c.Graph.Damping <= 0 || c.Graph.Damping >= 1 {
		return fmt.Errorf("graph.damping must be in (0,1), got %v", c.Graph.Damping)
	}
	if c.Graph.MaxIterations < 1 {
		return fmt.Errorf("graph.maxIterations must be >= 1, got %d", c.Graph.MaxIterations)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hybridsearch",
			User:            "hybridsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "hybridsearch-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				ScoresReplaced:  "graph.scores-replaced",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Ranking: RankingConfig{
			K1:                1.5,
			B:                 0.75,
			PerPage:           10,
			DefaultAlpha:      0.6,
			DefaultBeta:       0.3,
			DefaultGamma:      0.1,
			WeightTolerance:   1e-5,
			StatsTTL:          30 * time.Second,
			MetadataCacheSize: 10000,
			MetadataCacheTTL:  10 * time.Minute,
			SnapshotRefresh:   5 * time.Minute,
		},
		Graph: GraphConfig{
			Damping:       0.85,
			MaxIterations: 1000,
			Tolerance:     1e-6,
			Timeout:       10 * time.Minute,
		},
		HTTP: HTTPConfig{
			AllowOrigins:      []string{"*"},
			RequestsPerMinute: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "hybrid-search",
			Endpoint:    "localhost:4318",
			Insecure:    true,
			SampleRate:  0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_RANKING_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.K1 = f
		}
	}
	if v := os.Getenv("SP_RANKING_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.B = f
		}
	}
	if v := os.Getenv("SP_RANKING_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.PerPage = n
		}
	}
	if v := os.Getenv("SP_GRAPH_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Graph.MaxIterations = n
		}
	}
	if v := os.Getenv("SP_GRAPH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Graph.Timeout = d
		}
	}
	if v := os.Getenv("SP_HTTP_ALLOW_ORIGINS"); v != "" {
		cfg.HTTP.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SP_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}
