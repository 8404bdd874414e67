package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Limiter decides whether one more event for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a Redis-backed limiter when client is non-nil, otherwise an
// in-process one.
func New(client *redis.Client, prefix string, max int, window time.Duration) Limiter {
	if client != nil {
		return NewRedis(client, prefix, max, window)
	}
	return NewMemory(max, window)
}

// RedisLimiter is a fixed-window limiter using INCR/EXPIRE.
// Keys look like rl:<prefix>:<window_seconds>:<key>.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, max: max, window: window}
}

// Allow fails open: on a Redis error the event is allowed and the error returned.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := "rl:" + l.prefix + ":" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + key

	val, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if val == 1 {
		// first increment, set expiry
		l.client.Expire(ctx, k, l.window)
	}
	return val <= int64(l.max), nil
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is the in-process fallback used when Redis is not configured.
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemory(max int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  w,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.window {
		l.windows[key] = &window{start: now, count: 1}
		l.sweep(now)
		return 1 <= l.max, nil
	}
	w.count++
	return w.count <= l.max, nil
}

// sweep drops expired windows once the map grows.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) > l.window {
			delete(l.windows, k)
		}
	}
}

// Forget removes any state for key, e.g. when a connection closes.
func (l *MemoryLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}
