// Package store persists observations. Every backend is append-only.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/config"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
)

// Store is the write side of the weather_data table.
type Store interface {
	// Insert appends one observation. No update or delete path exists.
	Insert(ctx context.Context, obs models.Observation) error
	// Ping checks the backend is reachable. Used by /health.
	Ping(ctx context.Context) error
	Close() error
	// Backend names the implementation for metrics and logs.
	Backend() string
}

// New builds the store selected by cfg.StoreBackend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		s, err := NewPostgresStore(cfg.PostgresDSN, cfg.StoreTable, cfg.PostgresMaxOpenConns)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
			logger.Info("postgres table ensured", zap.String("table", cfg.StoreTable))
		}
		return s, nil
	case config.BackendPostgREST:
		s, err := NewPostgRESTStore(cfg.PostgRESTURL, cfg.PostgRESTKey, cfg.StoreTable, cfg.PostgRESTTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		return NewRedisStore(RedisOptions{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			KeyPrefix:  cfg.RedisKeyPrefix,
			MaxEntries: cfg.RedisMaxEntries,
		}), nil
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// MemoryStore keeps observations in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []models.Observation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, obs models.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, obs)
	return nil
}

// List returns a copy of every stored observation in insertion order.
func (s *MemoryStore) List() []models.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Observation, len(s.rows))
	copy(out, s.rows)
	return out
}

// Len returns the number of stored observations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Backend() string { return config.BackendMemory }

// row is the persisted shape shared by the JSON-encoding backends.
type row struct {
	Location      string  `json:"location"`
	Temperature   int     `json:"temperature"`
	Humidity      int     `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
	Conditions    string  `json:"conditions"`
	Date          string  `json:"date"`
	CreatedAt     string  `json:"created_at"`
}

func toRow(obs models.Observation) row {
	return row{
		Location:      obs.Location,
		Temperature:   obs.Temperature,
		Humidity:      obs.Humidity,
		Precipitation: obs.Precipitation,
		WindSpeed:     obs.WindSpeed,
		Conditions:    obs.Conditions,
		Date:          obs.Date,
		CreatedAt:     obs.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
