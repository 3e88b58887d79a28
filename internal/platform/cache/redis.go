// Package cache connects the optional Redis instance backing the period
// lock cache.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect pings Redis with a few short retries. A nil client and nil
// error mean caching is disabled.
func Connect(ctx context.Context, opts Options, maxRetries int) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, nil
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = rdb.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			slog.Info("redis connected", "addr", opts.Addr)
			return rdb, nil
		}
		slog.Warn("redis ping failed", "attempt", i, "maxRetries", maxRetries, "err", lastErr)
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * 500 * time.Millisecond):
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("redis connect %s: %w", opts.Addr, lastErr)
}
