package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-ingest-service/internal/config"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
)

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	MaxEntries int64 // 0 keeps every entry
}

// RedisStore appends observations to a Redis list and keeps the most recent
// one per location under its own key.
type RedisStore struct {
	client     *redisv9.Client
	prefix     string
	maxEntries int64
}

// NewRedisStore creates a RedisStore. The connection is established lazily.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisStoreWithClient(client, opts.KeyPrefix, opts.MaxEntries)
}

func newRedisStoreWithClient(client *redisv9.Client, prefix string, maxEntries int64) *RedisStore {
	if prefix == "" {
		prefix = "weather:"
	}
	return &RedisStore{client: client, prefix: prefix, maxEntries: maxEntries}
}

// ListKey is the list holding every observation in insertion order.
func (s *RedisStore) ListKey() string {
	return s.prefix + "observations"
}

// LatestKey holds the last observation written for location.
func (s *RedisStore) LatestKey(location string) string {
	return s.prefix + "latest:" + strings.ToLower(strings.TrimSpace(location))
}

func (s *RedisStore) Insert(ctx context.Context, obs models.Observation) error {
	b, err := json.Marshal(toRow(obs))
	if err != nil {
		return fmt.Errorf("redis: encode row: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.RPush(ctx, s.ListKey(), b)
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, s.ListKey(), -s.maxEntries, -1)
		}
		pipe.Set(ctx, s.LatestKey(obs.Location), b, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: insert: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Backend() string { return config.BackendRedis }
