package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

const pendingCachePattern = "events:pending:*"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the pending review list with Redis. Cache failures are
// logged and treated as misses; they never fail a request.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	// pendingGen advances on every pending invalidation.
	pendingGen atomic.Uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// InvalidatePending drops every cached pending list. Called after each event write.
func (s *CacheService) InvalidatePending(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.pendingGen.Add(1)
	s.Invalidate(ctx, pendingCachePattern)
}

// PendingGeneration returns the invalidation counter to pass to SetPending.
// Take it before reading from the database.
func (s *CacheService) PendingGeneration() uint64 {
	if !s.Enabled() {
		return 0
	}
	return s.pendingGen.Load()
}

// SetPending caches a pending list unless an invalidation ran since
// generation was taken. Invalidations from other instances are only bounded
// by the TTL.
func (s *CacheService) SetPending(ctx context.Context, key string, value interface{}, ttl time.Duration, generation uint64) {
	if !s.Enabled() {
		return
	}
	if s.pendingGen.Load() != generation {
		s.logger.Debug("pending list changed during read, not caching", zap.String("key", key))
		return
	}
	s.Set(ctx, key, value, ttl)
}

// PendingKey is the cache key of one actor's pending list for the given filters.
func PendingKey(actor Actor, classroomID, date string, period *int) string {
	p := "all"
	if period != nil {
		p = fmt.Sprintf("%d", *period)
	}
	return fmt.Sprintf("events:pending:%s:%s:%s:%s:%s", actor.Role, actor.UserID, classroomID, date, p)
}
