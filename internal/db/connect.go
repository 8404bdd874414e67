package db

import (
	"context"
	"time"

	"monopoly_server/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the history database. An empty dsn disables persistence and
// returns nil.
func Connect(dsn string) *pgxpool.Pool {
	if dsn == "" {
		logger.Warn("DATABASE_URL is not set, finished games will not be stored")
		return nil
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		logger.Fatal("failed to create database pool", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	logger.Info("database connected")
	return pool
}
