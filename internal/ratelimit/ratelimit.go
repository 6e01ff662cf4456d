// Package ratelimit implements fixed-window request counters backed by
// Redis, with an in-process fallback.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Result is the state of one key after a hit.
type Result struct {
	Count   int
	Limit   int
	ResetAt time.Time
}

func (r Result) Allowed() bool { return r.Count <= r.Limit }

func (r Result) Remaining() int {
	if r.Count >= r.Limit {
		return 0
	}
	return r.Limit - r.Count
}

// Limiter counts one request for key in the current window.
type Limiter interface {
	Hit(ctx context.Context, key string) (Result, error)
	Backend() string
}

// KEYS[1] = counter key, ARGV[1] = window in seconds. Returns {count, ttl}.
var hitScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`)

type RedisLimiter struct {
	client goredis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client goredis.Scripter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Backend() string { return "redis" }

func (l *RedisLimiter) Hit(ctx context.Context, key string) (Result, error) {
	raw, err := hitScript.Run(ctx, l.client, []string{l.prefix + key}, int(l.window.Seconds())).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit eval: %w", err)
	}
	count, ttl, err := parseHit(raw)
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		ttl = int64(l.window.Seconds())
	}
	return Result{
		Count:   int(count),
		Limit:   l.limit,
		ResetAt: time.Now().Add(time.Duration(ttl) * time.Second),
	}, nil
}

func parseHit(raw any) (count, ttl int64, err error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) < 2 {
		return 0, 0, errors.New("unexpected rate limit script result")
	}
	count, ok1 := arr[0].(int64)
	ttl, ok2 := arr[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, errors.New("unexpected rate limit script result")
	}
	return count, ttl, nil
}

type memoryEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process. Counts are per instance, so it
// is only exact for a single replica.
type MemoryLimiter struct {
	entries sync.Map
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, now: time.Now}
}

func (l *MemoryLimiter) Backend() string { return "memory" }

func (l *MemoryLimiter) Hit(_ context.Context, key string) (Result, error) {
	now := l.now()
	v, _ := l.entries.LoadOrStore(key, &memoryEntry{resetAt: now.Add(l.window)})
	e := v.(*memoryEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !now.Before(e.resetAt) {
		e.count = 0
		e.resetAt = now.Add(l.window)
	}
	e.count++
	return Result{Count: e.count, Limit: l.limit, ResetAt: e.resetAt}, nil
}

// Sweep drops expired windows.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.entries.Range(func(k, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		expired := !now.Before(e.resetAt)
		e.mu.Unlock()
		if expired {
			l.entries.Delete(k)
		}
		return true
	})
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// FallbackLimiter uses primary and switches to fallback for any request
// where primary fails. It fails open.
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
	logger   *slog.Logger
}

func NewFallbackLimiter(primary, fallback Limiter, logger *slog.Logger) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, fallback: fallback, logger: logger.With("component", "ratelimit")}
}

func (l *FallbackLimiter) Backend() string { return l.primary.Backend() }

func (l *FallbackLimiter) Hit(ctx context.Context, key string) (Result, error) {
	res, err := l.primary.Hit(ctx, key)
	if err == nil {
		return res, nil
	}
	l.logger.WarnContext(ctx, "primary rate limiter failed, using fallback", "backend", l.primary.Backend(), "error", err)
	return l.fallback.Hit(ctx, key)
}
