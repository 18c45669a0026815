package build

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
)

// MemoryStore keeps builds in process memory, bounded by entry count and age.
type MemoryStore struct {
	cache *expirable.LRU[string, *Result]
}

func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	cache := expirable.NewLRU[string, *Result](maxEntries, func(id string, _ *Result) {
		logger.Debug("Build evicted from memory store", zap.String("build_id", id))
	}, ttl)

	logger.Info("Memory build store initialized",
		zap.Int("max_entries", maxEntries),
		zap.Duration("ttl", ttl),
	)
	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Result, error) {
	r, ok := s.cache.Get(id)
	if !ok {
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.CacheHits.WithLabelValues("memory").Inc()
	return r.clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, result *Result) error {
	s.cache.Add(result.ID, result.clone())
	return nil
}

func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
