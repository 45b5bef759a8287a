package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StandingCache is a short-lived cache in front of the standing collaborator.
// Implementations must fail soft: a broken cache degrades to a miss, never to
// a gate error.
type StandingCache interface {
	Get(ctx context.Context, groupID, userID string) (Standing, bool)
	Set(ctx context.Context, groupID, userID string, standing Standing)
}

const standingKeyPrefix = "standing:"

// RedisCache is a Redis-backed StandingCache with a fixed TTL. The gate only
// stores passing standings, so the TTL bounds how long a member who left a
// group may still pass; fresh joins are never served stale.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache constructs a Redis-backed standing cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func standingKey(groupID, userID string) string {
	return standingKeyPrefix + groupID + ":" + userID
}

func (c *RedisCache) Get(ctx context.Context, groupID, userID string) (Standing, bool) {
	val, err := c.client.Get(ctx, standingKey(groupID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return StandingUnknown, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "standing cache read failed", "error", err)
		return StandingUnknown, false
	}
	return Standing(val), true
}

func (c *RedisCache) Set(ctx context.Context, groupID, userID string, standing Standing) {
	if err := c.client.Set(ctx, standingKey(groupID, userID), string(standing), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "standing cache write failed", "error", err)
	}
}
