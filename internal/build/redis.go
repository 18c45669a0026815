package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
)

// RedisStore keeps builds as JSON under build:<id> so they survive restarts
// and are shared between replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(host string, port int, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis build store initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(id string) string {
	return "build:" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Result, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal build: %w", err)
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return &result, nil
}

func (s *RedisStore) Put(ctx context.Context, result *Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal build: %w", err)
	}

	if err := s.client.Set(ctx, key(result.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store build: %w", err)
	}

	logger.Debug("Build stored", zap.String("build_id", result.ID), zap.String("status", string(result.Status)))
	return nil
}
