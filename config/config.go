package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	Redis         RedisConfig         `yaml:"redis"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Rounds        RoundsConfig        `yaml:"rounds"`
	Stats         StatsConfig         `yaml:"stats"`
	Achievements  AchievementsConfig  `yaml:"achievements"`
	Admin         AdminConfig         `yaml:"admin"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional live-presence cache configuration.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ClickHouseConfig holds the optional columnar analytics store configuration.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// IngestConfig controls snapshot polling and session lifecycle.
type IngestConfig struct {
	PollInterval   time.Duration  `yaml:"poll_interval"`
	SessionTimeout time.Duration  `yaml:"session_timeout"`
	SweepInterval  time.Duration  `yaml:"sweep_interval"`
	GeoLookup      bool           `yaml:"geo_lookup"`
	Sources        []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one upstream snapshot source.
type SourceConfig struct {
	Name              string `yaml:"name"`
	URL               string `yaml:"url"`
	Game              string `yaml:"game"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// RoundsConfig controls round boundary detection.
type RoundsConfig struct {
	GapThreshold time.Duration `yaml:"gap_threshold"`
}

// StatsConfig controls the aggregate update pipeline.
type StatsConfig struct {
	DrainInterval     time.Duration `yaml:"drain_interval"`
	BackfillBatchSize int           `yaml:"backfill_batch_size"`
}

// AchievementsConfig controls the checkpointed achievement processor.
type AchievementsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AdminConfig holds the admin and ops HTTP listener configuration.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// ObservabilityConfig holds logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
	MetricsAddress string `yaml:"metrics_address"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// LoadConfig loads the configuration from a YAML file, falling back to
// environment variables when the file is absent. Env vars win over file
// values either way.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return loadConfigFromEnv()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFromEnv builds the configuration from environment variables only.
func loadConfigFromEnv() (*Config, error) {
	var cfg Config

	cfg.Postgres.DSN = os.Getenv("DATABASE_URL")
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	cfg.NATS.URL = os.Getenv("NATS_URL")
	if cfg.NATS.URL == "" {
		return nil, fmt.Errorf("NATS_URL environment variable not set")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.ClickHouse.Addr = v
		cfg.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		cfg.ClickHouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.ClickHouse.Password = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.PollInterval = d
		}
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.SessionTimeout = d
		}
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.SweepInterval = d
		}
	}
	if v := os.Getenv("GEO_LOOKUP"); v != "" {
		cfg.Ingest.GeoLookup = v == "true"
	}
	if v := os.Getenv("ROUND_GAP_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Rounds.GapThreshold = d
		}
	}
	if v := os.Getenv("STATS_DRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stats.DrainInterval = d
		}
	}
	if v := os.Getenv("BACKFILL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stats.BackfillBatchSize = n
		}
	}
	if v := os.Getenv("ACHIEVEMENTS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Achievements.Interval = d
		}
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		cfg.Admin.Addr = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true"
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.PollInterval <= 0 {
		cfg.Ingest.PollInterval = 30 * time.Second
	}
	if cfg.Ingest.SessionTimeout <= 0 {
		cfg.Ingest.SessionTimeout = 5 * time.Minute
	}
	if cfg.Ingest.SweepInterval <= 0 {
		cfg.Ingest.SweepInterval = time.Minute
	}
	if cfg.Rounds.GapThreshold <= 0 {
		cfg.Rounds.GapThreshold = 10 * time.Minute
	}
	if cfg.Stats.DrainInterval <= 0 {
		cfg.Stats.DrainInterval = 5 * time.Second
	}
	if cfg.Stats.BackfillBatchSize <= 0 {
		cfg.Stats.BackfillBatchSize = 100
	}
	if cfg.Achievements.Interval <= 0 {
		cfg.Achievements.Interval = 5 * time.Minute
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":8880"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.Environment == "" {
		cfg.Observability.Environment = "development"
	}
	for i := range cfg.Ingest.Sources {
		if cfg.Ingest.Sources[i].RequestsPerMinute <= 0 {
			cfg.Ingest.Sources[i].RequestsPerMinute = 60
		}
	}
}

// Validate checks required settings.
func (cfg *Config) Validate() error {
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	for _, src := range cfg.Ingest.Sources {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("ingest source entries require name and url")
		}
		if src.Game == "" {
			return fmt.Errorf("ingest source %s requires a game", src.Name)
		}
	}
	return nil
}
