package dedup

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Deduper shared across runs and hosts. Keys expire after ttl.
type Redis struct {
	cli        *redis.Client
	prefix     string
	ttl        time.Duration
	logger     *slog.Logger
	errorCount atomic.Int64
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, prefix string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, err
	}
	return &Redis{cli: cli, prefix: prefix, ttl: ttl, logger: logger}, nil
}

// Seen implements Deduper. Redis errors count as unseen, so a failing
// Redis can cause a resend but never a lost record.
func (r *Redis) Seen(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ok, err := r.cli.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		if n := r.errorCount.Add(1); n%100 == 1 {
			r.logger.Warn("redis dedup error", "count", n, "error", err)
		}
		return false
	}
	return !ok
}

// Close releases the connection.
func (r *Redis) Close() error {
	return r.cli.Close()
}
