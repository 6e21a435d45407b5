package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for the ingestion endpoint. The coordinates are Lomé's; every
// request uses them whatever location label it carries.
const (
	DefaultLocation  = "Lomé, Togo"
	DefaultLatitude  = 6.1375
	DefaultLongitude = 1.2123
	DefaultAPIURL    = "https://api.open-meteo.com/v1/forecast"
	DefaultTable     = "weather_data"
)

// Store backend names accepted by store.backend / STORE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendPostgREST = "postgrest"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string
	IngestPath string

	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Latitude          float64
	Longitude         float64

	DefaultLocation   string
	LocationMaxLength int

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerMaxRequests      int
	CircuitBreakerInterval         time.Duration
	CircuitBreakerTimeout          time.Duration

	StoreBackend string
	StoreTable   string

	PostgresDSN          string
	PostgresMaxOpenConns int
	PostgresMigrate      bool

	PostgRESTURL     string
	PostgRESTKey     string
	PostgRESTTimeout time.Duration

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKeyPrefix  string
	RedisMaxEntries int64

	SchedulerEnabled    bool
	SchedulerCron       string
	SchedulerLocations  []string
	SchedulerRunTimeout time.Duration

	HealthPingTimeout      time.Duration
	HealthDegradedWindow   time.Duration
	HealthDegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port       string `yaml:"port"`
		IngestPath string `yaml:"ingest_path"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL       string   `yaml:"url"`
		Timeout   string   `yaml:"timeout"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
	} `yaml:"weather_api"`

	Location struct {
		Default   string `yaml:"default"`
		MaxLength int    `yaml:"max_length"`
	} `yaml:"location"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			MaxRequests      int    `yaml:"max_requests"`
			Interval         string `yaml:"interval"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Store struct {
		Backend  string `yaml:"backend"`
		Table    string `yaml:"table"`
		Postgres struct {
			DSN          string `yaml:"dsn"`
			MaxOpenConns int    `yaml:"max_open_conns"`
			Migrate      bool   `yaml:"migrate"`
		} `yaml:"postgres"`
		PostgREST struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"postgrest"`
		Redis struct {
			Addr       string `yaml:"addr"`
			DB         int    `yaml:"db"`
			KeyPrefix  string `yaml:"key_prefix"`
			MaxEntries int64  `yaml:"max_entries"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Scheduler struct {
		Enabled    bool     `yaml:"enabled"`
		Cron       string   `yaml:"cron"`
		Locations  []string `yaml:"locations"`
		RunTimeout string   `yaml:"run_timeout"`
	} `yaml:"scheduler"`

	Health struct {
		PingTimeout      string `yaml:"ping_timeout"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	DatabaseURL   string `yaml:"database_url"`
	SupabaseKey   string `yaml:"supabase_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and the optional
// config/secrets.yaml, after loading a .env file from the working directory if present.
// Environment variables override file values. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.IngestPath = firstNonEmpty(fc.Server.IngestPath, "/weather-api")
	if !strings.HasPrefix(cfg.IngestPath, "/") {
		cfg.IngestPath = "/" + cfg.IngestPath
	}

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("OPEN_METEO_URL"), fc.WeatherAPI.URL, DefaultAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.Latitude = DefaultLatitude
	if fc.WeatherAPI.Latitude != nil {
		cfg.Latitude = *fc.WeatherAPI.Latitude
	}
	cfg.Longitude = DefaultLongitude
	if fc.WeatherAPI.Longitude != nil {
		cfg.Longitude = *fc.WeatherAPI.Longitude
	}

	cfg.DefaultLocation = firstNonEmpty(strings.TrimSpace(fc.Location.Default), DefaultLocation)
	cfg.LocationMaxLength = fc.Location.MaxLength
	if cfg.LocationMaxLength < 0 {
		cfg.LocationMaxLength = 0
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerMaxRequests = cb.MaxRequests
	if cfg.CircuitBreakerMaxRequests <= 0 {
		cfg.CircuitBreakerMaxRequests = 1
	}
	cfg.CircuitBreakerInterval = parseDuration(cb.Interval, time.Minute)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendMemory
	}
	cfg.StoreTable = firstNonEmpty(strings.TrimSpace(fc.Store.Table), DefaultTable)

	cfg.PostgresDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL, fc.Store.Postgres.DSN)
	cfg.PostgresMaxOpenConns = fc.Store.Postgres.MaxOpenConns
	if cfg.PostgresMaxOpenConns <= 0 {
		cfg.PostgresMaxOpenConns = 4
	}
	cfg.PostgresMigrate = fc.Store.Postgres.Migrate

	cfg.PostgRESTURL = strings.TrimRight(firstNonEmpty(os.Getenv("SUPABASE_URL"), fc.Store.PostgREST.URL), "/")
	cfg.PostgRESTKey = firstNonEmpty(os.Getenv("SUPABASE_KEY"), sec.SupabaseKey)
	cfg.PostgRESTTimeout = parseDuration(fc.Store.PostgREST.Timeout, 5*time.Second)

	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Store.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Store.Redis.DB
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.RedisDB = n
	}
	cfg.RedisKeyPrefix = firstNonEmpty(fc.Store.Redis.KeyPrefix, "weather:")
	cfg.RedisMaxEntries = fc.Store.Redis.MaxEntries

	cfg.SchedulerEnabled = fc.Scheduler.Enabled
	cfg.SchedulerCron = strings.TrimSpace(fc.Scheduler.Cron)
	if cfg.SchedulerCron == "" {
		cfg.SchedulerCron = "@hourly"
	}
	for _, loc := range fc.Scheduler.Locations {
		if loc = strings.TrimSpace(loc); loc != "" {
			cfg.SchedulerLocations = append(cfg.SchedulerLocations, loc)
		}
	}
	if len(cfg.SchedulerLocations) == 0 {
		cfg.SchedulerLocations = []string{cfg.DefaultLocation}
	}
	cfg.SchedulerRunTimeout = parseDuration(fc.Scheduler.RunTimeout, 30*time.Second)

	cfg.HealthPingTimeout = parseDuration(fc.Health.PingTimeout, 2*time.Second)
	cfg.HealthDegradedWindow = parseDuration(fc.Health.DegradedWindow, time.Minute)
	cfg.HealthDegradedErrorPct = fc.Health.DegradedErrorPct

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout so the upstream call can finish before the request deadline.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + 5*time.Second
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		return fmt.Errorf("weather_api.latitude out of range: %v", cfg.Latitude)
	}
	if cfg.Longitude < -180 || cfg.Longitude > 180 {
		return fmt.Errorf("weather_api.longitude out of range: %v", cfg.Longitude)
	}
	if cfg.HealthDegradedErrorPct < 0 || cfg.HealthDegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be between 0 and 100, got %d", cfg.HealthDegradedErrorPct)
	}
	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL required for store.backend postgres (set env, config/secrets.yaml database_url or store.postgres.dsn)")
		}
	case BackendPostgREST:
		if cfg.PostgRESTURL == "" {
			return fmt.Errorf("SUPABASE_URL required for store.backend postgrest (set env or store.postgrest.url)")
		}
		if cfg.PostgRESTKey == "" {
			return fmt.Errorf("SUPABASE_KEY required for store.backend postgrest (set env or config/secrets.yaml supabase_key)")
		}
	default:
		return fmt.Errorf("store.backend must be memory, postgres, postgrest or redis, got %q", cfg.StoreBackend)
	}
	return nil
}
