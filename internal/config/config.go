package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	DB        DBConfig        `yaml:"db"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type DBConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FetchConfig struct {
	GridSize       int           `yaml:"grid_size"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	FailurePolicy  string        `yaml:"failure_policy"`
}

type NormalizeConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	SkipLimit int `yaml:"skip_limit"`
}

type AggregateConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// RedisConfig enables the cross-process run lock when URL is set.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{Driver: StoreDriverPostgres},
		DB: DBConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
		Fetch: FetchConfig{
			GridSize:       4,
			MaxConcurrent:  5,
			Timeout:        5 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     200 * time.Millisecond,
			ConnectTimeout: 3 * time.Second,
			FailurePolicy:  "isolate",
		},
		Normalize: NormalizeConfig{ChunkSize: 500, SkipLimit: 1000},
		Aggregate: AggregateConfig{ChunkSize: 500},
		Redis:     RedisConfig{LockTTL: 15 * time.Minute},
		Telemetry: TelemetryConfig{ServiceName: "logforge"},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)

	cfg.DB.DSN = getEnv("POSTGRES_DSN", cfg.DB.DSN)
	cfg.DB.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)
	cfg.DB.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns)
	cfg.DB.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.DB.ConnMaxLifetime)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Fetch.GridSize = getEnvInt("FETCH_GRID_SIZE", cfg.Fetch.GridSize)
	cfg.Fetch.MaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", cfg.Fetch.MaxConcurrent)
	cfg.Fetch.Timeout = getEnvDuration("FETCH_TIMEOUT", cfg.Fetch.Timeout)
	cfg.Fetch.RetryAttempts = getEnvInt("FETCH_RETRY_ATTEMPTS", cfg.Fetch.RetryAttempts)
	cfg.Fetch.RetryDelay = getEnvDuration("FETCH_RETRY_DELAY", cfg.Fetch.RetryDelay)
	cfg.Fetch.ConnectTimeout = getEnvDuration("FETCH_CONNECT_TIMEOUT", cfg.Fetch.ConnectTimeout)
	cfg.Fetch.RateLimitRPS = getEnvFloat("FETCH_RATE_LIMIT_RPS", cfg.Fetch.RateLimitRPS)
	cfg.Fetch.FailurePolicy = getEnv("FETCH_FAILURE_POLICY", cfg.Fetch.FailurePolicy)

	cfg.Normalize.ChunkSize = getEnvInt("NORMALIZE_CHUNK_SIZE", cfg.Normalize.ChunkSize)
	cfg.Normalize.SkipLimit = getEnvInt("NORMALIZE_SKIP_LIMIT", cfg.Normalize.SkipLimit)
	cfg.Aggregate.ChunkSize = getEnvInt("AGGREGATE_CHUNK_SIZE", cfg.Aggregate.ChunkSize)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.LockTTL = getEnvDuration("RUN_LOCK_TTL", cfg.Redis.LockTTL)

	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.OTLPInsecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.OTLPInsecure)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"FETCH_GRID_SIZE", c.Fetch.GridSize},
		{"FETCH_MAX_CONCURRENT", c.Fetch.MaxConcurrent},
		{"FETCH_RETRY_ATTEMPTS", c.Fetch.RetryAttempts},
		{"NORMALIZE_CHUNK_SIZE", c.Normalize.ChunkSize},
		{"NORMALIZE_SKIP_LIMIT", c.Normalize.SkipLimit},
		{"AGGREGATE_CHUNK_SIZE", c.Aggregate.ChunkSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Fetch.ConnectTimeout <= 0 {
		return fmt.Errorf("FETCH_CONNECT_TIMEOUT must be positive")
	}
	if c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("FETCH_RETRY_DELAY must not be negative")
	}
	if c.Fetch.RateLimitRPS < 0 {
		return fmt.Errorf("FETCH_RATE_LIMIT_RPS must not be negative")
	}
	if c.Fetch.FailurePolicy != "isolate" && c.Fetch.FailurePolicy != "fail-fast" {
		return fmt.Errorf("FETCH_FAILURE_POLICY must be isolate or fail-fast, got %q", c.Fetch.FailurePolicy)
	}
	if c.Redis.URL != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("RUN_LOCK_TTL must be positive when REDIS_URL is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("250ms", "5s").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
