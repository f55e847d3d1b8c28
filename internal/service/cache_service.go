package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mivoto/pkg/redis"
)

// CacheService implements cache-aside helpers on top of Redis. A nil
// client disables caching and locking.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{redis: redisClient, logger: logger}
}

// Enabled reports whether a Redis client is configured
func (c *CacheService) Enabled() bool {
	return c != nil && c.redis != nil
}

// Keys returns the environment-aware key builder
func (c *CacheService) Keys() *redis.KeyBuilder {
	if !c.Enabled() {
		return redis.NewKeyBuilder("")
	}
	return c.redis.KeyBuilder
}

// GetJSON decodes a cached value into dest and reports a hit. Errors and
// corrupt entries count as a miss.
func (c *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}

	cached, err := c.redis.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("Cache read failed, falling back to store", zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(cached), dest); err != nil {
		c.logger.Warn("Cache entry corrupted, falling back to store", zap.Error(err))
		return false
	}
	return true
}

// SetJSON caches value. Failures are logged only.
func (c *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Failed to write cache entry", zap.Error(err))
	}
}

// Invalidate removes keys
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.redis.Delete(ctx, keys...); err != nil {
		c.logger.Warn("Failed to invalidate cache", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// AcquireCastLock takes the in-flight lock for a credential. It returns
// false when another request holds it. Without Redis, or when Redis fails,
// the lock is skipped and the store's uniqueness constraint remains the
// guarantee.
func (c *CacheService) AcquireCastLock(ctx context.Context, tokenHash string) (acquired bool, release func()) {
	noop := func() {}
	if !c.Enabled() {
		return true, noop
	}

	key := c.redis.KeyBuilder.KeyCastLock(tokenHash)
	owner := uuid.NewString()

	ok, err := c.redis.SetNX(ctx, key, owner, redis.TTLCastLock)
	if err != nil {
		c.logger.Warn("Cast lock unavailable, continuing without it", zap.Error(err))
		return true, noop
	}
	if !ok {
		return false, noop
	}

	return true, func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := c.redis.ReleaseIfOwner(releaseCtx, key, owner); err != nil {
			c.logger.Warn("Failed to release cast lock", zap.Error(err))
		}
	}
}
