package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

// Limiter implements a fixed-window request counter. Allow reports whether
// the key may proceed; when it may not, retryAfter says how long until the
// window resets.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type redisLimiter struct {
	log    *logger.Logger
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter counts per key in Redis so the limit holds across
// replicas.
func NewRedisLimiter(log *logger.Logger, client *redis.Client, limit int, window time.Duration) Limiter {
	return &redisLimiter{
		log:    log.With("service", "RateLimiter"),
		client: client,
		limit:  limit,
		window: window,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	rkey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, rkey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, rkey, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, rkey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

type memoryWindow struct {
	count int
	reset time.Time
}

type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	limit   int
	window  time.Duration
}

// NewMemoryLimiter is the single-process fallback used when no Redis
// address is configured.
func NewMemoryLimiter(limit int, window time.Duration) Limiter {
	return &memoryLimiter{
		windows: map[string]*memoryWindow{},
		limit:   limit,
		window:  window,
	}
}

func (l *memoryLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.reset) {
		l.windows[key] = &memoryWindow{count: 1, reset: now.Add(l.window)}
		return true, 0, nil
	}
	w.count++
	if w.count <= l.limit {
		return true, 0, nil
	}
	return false, time.Until(w.reset), nil
}
