// Package cache holds the Redis read-through cache of each user's followed ids.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/store"
)

const defaultTTL = 10 * time.Minute

// FollowingCache 缓存「我关注的人」ID 列表，key = following:<uid>
// 读穿透：miss 或 Redis 不可用时查库；关注边变化时由提交钩子失效。
type FollowingCache struct {
	rdb *redis.Client
	db  *gorm.DB
	ttl time.Duration
	log *zap.Logger

	hits  atomic.Int64
	loads atomic.Int64
}

func NewFollowingCache(rdb *redis.Client, db *gorm.DB, ttl time.Duration, log *zap.Logger) *FollowingCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FollowingCache{rdb: rdb, db: db, ttl: ttl, log: log}
}

func key(userID uint) string { return fmt.Sprintf("following:%d", userID) }

// FollowingIDs returns the ids userID follows, newest edge first.
func (c *FollowingCache) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	data, err := c.rdb.Get(ctx, key(userID)).Bytes()
	switch {
	case err == nil:
		var ids []uint
		if uErr := json.Unmarshal(data, &ids); uErr == nil {
			c.hits.Add(1)
			return ids, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("following cache read failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	ids, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(ids); err == nil {
		if err := c.rdb.Set(ctx, key(userID), payload, c.ttl).Err(); err != nil {
			c.log.Warn("following cache write failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return ids, nil
}

func (c *FollowingCache) load(ctx context.Context, userID uint) ([]uint, error) {
	c.loads.Add(1)
	ids := []uint{}
	err := c.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ?", userID).
		Order("created_at DESC").
		Pluck("followed_id", &ids).Error
	return ids, err
}

// Invalidate drops the cached sets of userIDs.
func (c *FollowingCache) Invalidate(ctx context.Context, userIDs ...uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

var _ store.CommitHook = (*FollowingCache)(nil)

// BeforeCommit collects the followers whose edges changed; their sets are dropped after commit.
func (c *FollowingCache) BeforeCommit(_ context.Context, changes store.ChangeSet) (store.AfterCommit, error) {
	seen := map[uint]struct{}{}
	var stale []uint
	for _, group := range [][]any{changes.New, changes.Dirty, changes.Deleted} {
		for _, e := range group {
			f, ok := e.(*model.Follow)
			if !ok {
				continue
			}
			if _, dup := seen[f.FollowerID]; dup {
				continue
			}
			seen[f.FollowerID] = struct{}{}
			stale = append(stale, f.FollowerID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	return func(ctx context.Context) {
		if err := c.Invalidate(ctx, stale...); err != nil {
			// TTL bounds how long the stale set survives
			c.log.Warn("following cache invalidation failed", zap.Uints("user_ids", stale), zap.Error(err))
		}
	}, nil
}

// Counters reports cache hits and database loads since start.
func (c *FollowingCache) Counters() (hits, loads int64) {
	return c.hits.Load(), c.loads.Load()
}
