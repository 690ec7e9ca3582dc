// Package settings loads business profile settings (studio name, AI
// assistant name, contact details) with a Redis read-through cache in front
// of the database. Settings feed template variable resolution on every
// message send, so the cache keeps the scheduler from hammering the
// settings table.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

const (
	cacheKey = "crm:settings:business"
	cacheTTL = 5 * time.Minute
)

// Repository loads settings from durable storage.
type Repository interface {
	GetBusinessSettings(ctx context.Context) (domain.BusinessSettings, error)
}

// Cache is a read-through cache over a settings Repository. With a nil
// Redis client every read goes straight to the repository.
type Cache struct {
	repo  Repository
	redis *redis.Client
}

// NewCache creates a settings cache. redisClient may be nil.
func NewCache(repo Repository, redisClient *redis.Client) *Cache {
	return &Cache{repo: repo, redis: redisClient}
}

// Get returns the current business settings, serving from Redis when a
// fresh copy exists. Cache failures degrade to a direct database read.
func (c *Cache) Get(ctx context.Context) (domain.BusinessSettings, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var s domain.BusinessSettings
			if jsonErr := json.Unmarshal(data, &s); jsonErr == nil {
				return s, nil
			}
			// Corrupt entry: fall through to the database and rewrite.
		} else if !errors.Is(err, redis.Nil) {
			logger.Warn("settings cache read failed", "error", err)
		}
	}

	s, err := c.repo.GetBusinessSettings(ctx)
	if err != nil {
		return domain.BusinessSettings{}, err
	}

	if c.redis != nil {
		if data, err := json.Marshal(s); err == nil {
			if err := c.redis.Set(ctx, cacheKey, data, cacheTTL).Err(); err != nil {
				logger.Warn("settings cache write failed", "error", err)
			}
		}
	}
	return s, nil
}

// Invalidate drops the cached settings so the next Get reloads from the
// database. Called after settings updates.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, cacheKey).Err()
}
