package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monopoly_server/internal/board"
	"monopoly_server/internal/cache"
	"monopoly_server/internal/config"
	"monopoly_server/internal/db"
	"monopoly_server/internal/game"
	httpServer "monopoly_server/internal/http"
	"monopoly_server/internal/http/handlers"
	"monopoly_server/internal/lobby"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/ratelimit"
	"monopoly_server/internal/repository"
	"monopoly_server/internal/service"

	"github.com/gin-gonic/gin"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.AdminSecret)

	b, err := board.Load(cfg.BoardPath, cfg.PawnsPath)
	if err != nil {
		logger.Fatal("failed to load board", "error", err)
	}

	checks := map[string]handlers.Check{}
	var store lobby.ResultStore
	var history handlers.History
	audit := service.NewAuditService(nil)

	dbPool := db.Connect(cfg.DatabaseURL)
	if dbPool != nil {
		defer dbPool.Close()
		repo := repository.NewGameHistoryRepository(dbPool)
		store, history = repo, repo
		audit = service.NewAuditService(repository.NewAuditRepository(dbPool))
		checks["database"] = dbPool.Ping
	}

	rdb := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	registry := lobby.NewRegistry(b, cfg.Rules(), game.CryptoRandomizer{}, store)
	stopCleanup := make(chan struct{})
	registry.StartCleanup(10*time.Minute, time.Hour, 10*time.Minute, stopCleanup)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Registry:      registry,
		History:       history,
		Audit:         audit,
		Checks:        checks,
		APILimiter:    ratelimit.New(rdb, "api", cfg.APIRateLimit, cfg.APIRateWindow),
		WSLimiter:     ratelimit.New(rdb, "ws", cfg.WSMessageLimit, cfg.WSMessageWindow),
		AllowedOrigin: cfg.AllowedOrigin,
		Version:       version,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version, "tiles", b.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	close(stopCleanup)
	registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
