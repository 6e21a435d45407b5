//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/client"
	"github.com/kjstillabower/weather-ingest-service/internal/config"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
	"github.com/kjstillabower/weather-ingest-service/internal/service"
	"github.com/kjstillabower/weather-ingest-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL       string
	StoreBackend string // memory, postgres, postgrest or redis
	DatabaseURL  string
	SupabaseURL  string
	SupabaseKey  string
	RedisAddr    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless RUN_LIVE_TESTS is set, since it calls the real provider.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	if os.Getenv("RUN_LIVE_TESTS") == "" {
		t.Skip("RUN_LIVE_TESTS not set, skipping integration test")
	}

	apiURL := os.Getenv("OPEN_METEO_URL")
	if apiURL == "" {
		apiURL = config.DefaultAPIURL
	}
	backend := os.Getenv("INTEGRATION_STORE_BACKEND")
	if backend == "" {
		backend = config.BackendMemory
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return IntegrationTestConfig{
		APIURL:       apiURL,
		StoreBackend: backend,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SupabaseURL:  os.Getenv("SUPABASE_URL"),
		SupabaseKey:  os.Getenv("SUPABASE_KEY"),
		RedisAddr:    redisAddr,
	}
}

// SetupIntegrationService creates a fully configured ingestion service for integration tests.
// Returns the service, its store, and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.IngestionService, store.Store, func()) {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	weatherClient := SetupIntegrationClient(t, cfg)

	storeCfg := &config.Config{
		StoreBackend:     cfg.StoreBackend,
		StoreTable:       config.DefaultTable,
		PostgresDSN:      cfg.DatabaseURL,
		PostgresMigrate:  true,
		PostgRESTURL:     cfg.SupabaseURL,
		PostgRESTKey:     cfg.SupabaseKey,
		PostgRESTTimeout: 5 * time.Second,
		RedisAddr:        cfg.RedisAddr,
		RedisKeyPrefix:   "weather-it-" + strconv.FormatInt(time.Now().UnixNano(), 36) + ":",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.New(ctx, storeCfg, logger)
	if err != nil {
		t.Fatalf("store.New(%s) error = %v", cfg.StoreBackend, err)
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		t.Skipf("%s store not reachable: %v", cfg.StoreBackend, err)
	}
	t.Logf("Using %s store", st.Backend())

	coords := models.Coordinates{Latitude: config.DefaultLatitude, Longitude: config.DefaultLongitude}
	svc := service.NewIngestionService(weatherClient, st, coords, logger.With(zap.String("test", t.Name())))
	return svc, st, func() { _ = st.Close() }
}

// SetupIntegrationClient creates a provider client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	c, err := client.NewOpenMeteoClient(cfg.APIURL, client.Options{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}
