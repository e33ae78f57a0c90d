// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Dataset, Ranking, Relevance,
// Evaluation, Search, etc.).
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
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Relevance  RelevanceConfig  `yaml:"relevance"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Search     SearchConfig     `yaml:"search"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
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
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DatasetConfig selects where POI records are loaded from. Source is "csv"
// or "postgres".
type DatasetConfig struct {
	Source      string        `yaml:"source"`
	Path        string        `yaml:"path"`
	Table       string        `yaml:"table"`
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// RankingConfig holds the fusion weights and signal parameters.
type RankingConfig struct {
	LexicalWeight        float64 `yaml:"lexicalWeight"`
	DistanceWeight       float64 `yaml:"distanceWeight"`
	RatingWeight         float64 `yaml:"ratingWeight"`
	PopularityWeight     float64 `yaml:"popularityWeight"`
	K1                   float64 `yaml:"k1"`
	B                    float64 `yaml:"b"`
	MaxDistanceKm        float64 `yaml:"maxDistanceKm"`
	NeutralLexicalScore  float64 `yaml:"neutralLexicalScore"`
	NeutralDistanceScore float64 `yaml:"neutralDistanceScore"`
	DefaultTopK          int     `yaml:"defaultTopK"`
}

// RelevanceConfig tunes the pseudo-relevance labeler.
type RelevanceConfig struct {
	TopQuantile            float64 `yaml:"topQuantile"`
	MinRating              float64 `yaml:"minRating"`
	RequiredVotes          int     `yaml:"requiredVotes"`
	QueryDistanceFraction  float64 `yaml:"queryDistanceFraction"`
	BrowseDistanceFraction float64 `yaml:"browseDistanceFraction"`
}

// EvaluationConfig controls the metric cutoffs.
type EvaluationConfig struct {
	DefaultK         int     `yaml:"defaultK"`
	DistanceCutoffKm float64 `yaml:"distanceCutoffKm"`
	MAPWindow        int     `yaml:"mapWindow"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AnalyticsConfig controls the analytics service.
type AnalyticsConfig struct {
	Port             int           `yaml:"port"`
	MetricsPort      int           `yaml:"metricsPort"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging. Sampled requests and requests slower
// than SlowThreshold have their span tree logged.
type TracingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SampleRate    float64       `yaml:"sampleRate"`
	SlowThreshold time.Duration `yaml:"slowThreshold"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Dataset.Source {
	case "csv":
		if c.Dataset.Path == "" {
			return fmt.Errorf("config: dataset.path is required for csv source")
		}
	case "postgres":
		if c.Dataset.Table == "" {
			return fmt.Errorf("config: dataset.table is required for postgres source")
		}
	default:
		return fmt.Errorf("config: unknown dataset.source %q", c.Dataset.Source)
	}
	r := c.Ranking
	for name, w := range map[string]float64{
		"lexicalWeight":    r.LexicalWeight,
		"distanceWeight":   r.DistanceWeight,
		"ratingWeight":     r.RatingWeight,
		"popularityWeight": r.PopularityWeight,
	} {
		if w < 0 {
			return fmt.Errorf("config: ranking.%s must not be negative", name)
		}
	}
	if q := c.Relevance.TopQuantile; q < 0 || q > 1 {
		return fmt.Errorf("config: relevance.topQuantile must be within [0,1], got %v", q)
	}
	if c.Relevance.QueryDistanceFraction <= 0 || c.Relevance.BrowseDistanceFraction <= 0 {
		return fmt.Errorf("config: relevance distance fractions must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "poisearch",
			User:            "poisearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "poisearch-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "search-analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Dataset: DatasetConfig{
			Source:      "csv",
			Path:        "data/poi_jakarta_selatan.csv",
			Table:       "poi_records",
			LoadTimeout: 2 * time.Minute,
		},
		Ranking: RankingConfig{
			LexicalWeight:        0.4,
			DistanceWeight:       0.3,
			RatingWeight:         0.2,
			PopularityWeight:     0.1,
			K1:                   1.5,
			B:                    0.75,
			MaxDistanceKm:        10,
			NeutralLexicalScore:  0.5,
			NeutralDistanceScore: 0.5,
			DefaultTopK:          50,
		},
		Relevance: RelevanceConfig{
			TopQuantile:            0.75,
			MinRating:              4.0,
			RequiredVotes:          2,
			QueryDistanceFraction:  0.5,
			BrowseDistanceFraction: 0.5,
		},
		Evaluation: EvaluationConfig{
			DefaultK:         10,
			DistanceCutoffKm: 5,
			MAPWindow:        1000,
		},
		Search: SearchConfig{
			MaxResults:   200,
			DefaultLimit: 50,
			Timeout:      5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Port:             8083,
			MetricsPort:      9091,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:       true,
			SampleRate:    0.01,
			SlowThreshold: 250 * time.Millisecond,
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
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SP_DATASET_SOURCE"); v != "" {
		cfg.Dataset.Source = v
	}
	if v := os.Getenv("SP_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("SP_DATASET_TABLE"); v != "" {
		cfg.Dataset.Table = v
	}
	if v := os.Getenv("SP_RANKING_MAX_DISTANCE_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.MaxDistanceKm = f
		}
	}
	if v := os.Getenv("SP_EVALUATION_DEFAULT_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.DefaultK = k
		}
	}
	if v := os.Getenv("SP_ANALYTICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.Port = port
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
