package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/redis/go-redis/v9"
)

// ProgressSnapshot is the cacheable, display-only view of a user's reputation.
type ProgressSnapshot struct {
	UserID string      `json:"user_id"`
	Points int64       `json:"points"`
	Tier   models.Tier `json:"tier"`
}

// ProgressCache serves point-in-time snapshots. Unlock decisions never read it.
type ProgressCache interface {
	Get(ctx context.Context, userID string) (ProgressSnapshot, bool)
	Set(ctx context.Context, snap ProgressSnapshot)
	Invalidate(ctx context.Context, userID string)
}

// NopCache is used when no Redis is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (ProgressSnapshot, bool) { return ProgressSnapshot{}, false }
func (NopCache) Set(context.Context, ProgressSnapshot)                {}
func (NopCache) Invalidate(context.Context, string)                   {}

type RedisProgressCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

// NewRedisClient dials addr and pings it once.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisProgressCache(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisProgressCache {
	return &RedisProgressCache{rdb: rdb, ttl: ttl, log: log.With("service", "RedisProgressCache")}
}

func progressKey(userID string) string {
	return "circle:progress:" + userID
}

func (c *RedisProgressCache) Get(ctx context.Context, userID string) (ProgressSnapshot, bool) {
	raw, err := c.rdb.Get(ctx, progressKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("[CACHE] get failed", "user_id", userID, "error", err)
		}
		return ProgressSnapshot{}, false
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.log.Warn("[CACHE] corrupt entry dropped", "user_id", userID, "error", err)
		c.Invalidate(ctx, userID)
		return ProgressSnapshot{}, false
	}
	return snap, true
}

func (c *RedisProgressCache) Set(ctx context.Context, snap ProgressSnapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, progressKey(snap.UserID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("[CACHE] set failed", "user_id", snap.UserID, "error", err)
	}
}

func (c *RedisProgressCache) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, progressKey(userID)).Err(); err != nil {
		c.log.Warn("[CACHE] invalidate failed", "user_id", userID, "error", err)
	}
}
