package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/internal/model"
)

const keyPrefix = "activity:role"

// RoleSource is the authoritative lookup behind the cache.
type RoleSource interface {
	RoleOf(ctx context.Context, projectID, userID int64) (model.Role, error)
}

// RoleCache keeps project roles in Redis in front of the member store.
// Redis errors never fail a lookup; the source is consulted instead.
type RoleCache struct {
	client *redis.Client
	source RoleSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewRoleCache(client *redis.Client, source RoleSource, ttl time.Duration, logger *slog.Logger) *RoleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleCache{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

func Key(projectID, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", keyPrefix, projectID, userID)
}

func (c *RoleCache) RoleOf(ctx context.Context, projectID, userID int64) (model.Role, error) {
	key := Key(projectID, userID)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if level, convErr := strconv.Atoi(cached); convErr == nil {
			return model.Role(level), nil
		}
		c.logger.WarnContext(ctx, "discarding unparsable cached role", "key", key, "value", cached)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "role cache read failed, using store", "key", key, "error", err)
	}

	role, err := c.source.RoleOf(ctx, projectID, userID)
	if err != nil {
		return model.RoleNone, err
	}

	if err := c.client.Set(ctx, key, int(role), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "role cache write failed", "key", key, "error", err)
	}
	return role, nil
}

// Invalidate drops a cached role after a membership change.
func (c *RoleCache) Invalidate(ctx context.Context, projectID, userID int64) error {
	if err := c.client.Del(ctx, Key(projectID, userID)).Err(); err != nil {
		return fmt.Errorf("invalidating role: %w", err)
	}
	return nil
}
