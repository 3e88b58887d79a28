package review

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
)

// CachedLockChecker remembers finalized periods in Redis. Only positive
// answers are cached: a final review is never removed, so a locked period
// stays locked, while an unlocked one may be finalized at any moment.
// Cache failures fall through to the wrapped checker.
type CachedLockChecker struct {
	next   kpi.LockChecker
	client redis.Cmdable
	ttl    time.Duration
}

func NewCachedLockChecker(next kpi.LockChecker, client redis.Cmdable, ttl time.Duration) *CachedLockChecker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedLockChecker{next: next, client: client, ttl: ttl}
}

func LockCacheKey(key period.Key) string {
	return "kpiflow:period-lock:" + key.String()
}

func (c *CachedLockChecker) IsLocked(ctx context.Context, key period.Key) (bool, error) {
	cacheKey := LockCacheKey(key)
	val, err := c.client.Get(ctx, cacheKey).Result()
	switch {
	case err == nil && val == "1":
		return true, nil
	case err != nil && !errors.Is(err, redis.Nil):
		slog.Warn("period lock cache read failed", "key", cacheKey, "err", err)
	}

	locked, err := c.next.IsLocked(ctx, key)
	if err != nil {
		return false, err
	}
	if locked {
		c.remember(ctx, cacheKey)
	}
	return locked, nil
}

// MarkLocked records a freshly finalized period.
func (c *CachedLockChecker) MarkLocked(ctx context.Context, key period.Key) {
	c.remember(ctx, LockCacheKey(key))
}

func (c *CachedLockChecker) remember(ctx context.Context, cacheKey string) {
	if err := c.client.Set(ctx, cacheKey, "1", c.ttl).Err(); err != nil {
		slog.Warn("period lock cache write failed", "key", cacheKey, "err", err)
	}
}
