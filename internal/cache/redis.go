package cache

import (
	"context"
	"time"

	"monopoly_server/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// Connect returns a Redis client, or nil when addr is empty or the server does
// not answer a ping. Callers fall back to in-process state on nil.
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory rate limiting", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}

	logger.Info("redis connected", "addr", addr)
	return client
}
