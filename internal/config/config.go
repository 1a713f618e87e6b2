package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"fundsflow.org/internal/ledger"
)

// Config holds runtime settings for cmd/api and cmd/migrate.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`

	PostgresDSN string `yaml:"postgres_dsn"`
	Migrations  string `yaml:"migrations_dir"`
	Seeds       string `yaml:"seeds_dir"`

	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	MaxBodyBytes   int64   `yaml:"max_body_bytes"`
	CORSOrigins    string  `yaml:"cors_origins"`

	FixtureSeed  int64         `yaml:"fixture_seed"`
	FixtureCount int           `yaml:"fixture_count"`
	DemoInterval time.Duration `yaml:"demo_interval"`

	ReconcileSchedule string `yaml:"reconcile_schedule"`

	Chart ledger.Chart `yaml:"chart"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":9090",
		LogLevel:          "info",
		Migrations:        "ops/migrations",
		Seeds:             "ops/seeds",
		CacheTTL:          5 * time.Minute,
		RateLimitRPS:      50,
		RateLimitBurst:    100,
		MaxBodyBytes:      1 << 20,
		CORSOrigins:       "*",
		FixtureSeed:       1,
		FixtureCount:      120,
		ReconcileSchedule: "0 8 * * *",
		Chart:             ledger.DefaultChart(),
	}
}

// Load reads an optional .env file, then the YAML file named by
// FUNDSFLOW_CONFIG, then FUNDSFLOW_* environment variables, and validates
// the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv("FUNDSFLOW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.overrideWithEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("FUNDSFLOW_HTTP_ADDR", &c.HTTPAddr)
	str("FUNDSFLOW_GRPC_ADDR", &c.GRPCAddr)
	str("FUNDSFLOW_LOG_LEVEL", &c.LogLevel)
	str("FUNDSFLOW_PG_DSN", &c.PostgresDSN)
	str("FUNDSFLOW_MIGRATIONS_DIR", &c.Migrations)
	str("FUNDSFLOW_SEEDS_DIR", &c.Seeds)
	str("FUNDSFLOW_REDIS_ADDR", &c.RedisAddr)
	str("FUNDSFLOW_CORS_ORIGINS", &c.CORSOrigins)
	str("FUNDSFLOW_RECONCILE_SCHEDULE", &c.ReconcileSchedule)
	str("FUNDSFLOW_FEE_ACCOUNT", &c.Chart.FeeAccount)
	str("FUNDSFLOW_OVA_ACCOUNT", &c.Chart.OVA)
	str("FUNDSFLOW_PROVIDER_FEE_ACCOUNT", &c.Chart.ProviderFeeAccount)

	var errs []error
	if v := os.Getenv("FUNDSFLOW_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("FUNDSFLOW_CACHE_TTL", err))
		c.CacheTTL = d
	}
	if v := os.Getenv("FUNDSFLOW_DEMO_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("FUNDSFLOW_DEMO_INTERVAL", err))
		c.DemoInterval = d
	}
	if v := os.Getenv("FUNDSFLOW_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapEnv("FUNDSFLOW_RATE_LIMIT_RPS", err))
		c.RateLimitRPS = f
	}
	if v := os.Getenv("FUNDSFLOW_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("FUNDSFLOW_RATE_LIMIT_BURST", err))
		c.RateLimitBurst = n
	}
	if v := os.Getenv("FUNDSFLOW_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		errs = append(errs, wrapEnv("FUNDSFLOW_MAX_BODY_BYTES", err))
		c.MaxBodyBytes = n
	}
	if v := os.Getenv("FUNDSFLOW_FIXTURE_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		errs = append(errs, wrapEnv("FUNDSFLOW_FIXTURE_SEED", err))
		c.FixtureSeed = n
	}
	if v := os.Getenv("FUNDSFLOW_FIXTURE_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("FUNDSFLOW_FIXTURE_COUNT", err))
		c.FixtureCount = n
	}
	return errors.Join(errs...)
}

func wrapEnv(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache_ttl must not be negative"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.FixtureCount < 0 {
		errs = append(errs, errors.New("fixture_count must not be negative"))
	}
	if c.DemoInterval < 0 {
		errs = append(errs, errors.New("demo_interval must not be negative"))
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("reconcile_schedule: %w", err))
		}
	}
	if c.Chart.FeeAccount == "" || c.Chart.OVA == "" || c.Chart.ProviderFeeAccount == "" {
		errs = append(errs, errors.New("chart accounts must not be empty"))
	}
	return errors.Join(errs...)
}
