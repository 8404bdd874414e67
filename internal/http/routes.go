package http

import (
	"monopoly_server/internal/http/handlers"
	"monopoly_server/internal/http/middleware"
	"monopoly_server/internal/lobby"
	"monopoly_server/internal/ratelimit"
	"monopoly_server/internal/service"
	"monopoly_server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface needs. History may be nil when no
// database is configured.
type Deps struct {
	Registry      *lobby.Registry
	History       handlers.History
	Audit         *service.AuditService
	Checks        map[string]handlers.Check
	APILimiter    ratelimit.Limiter
	WSLimiter     ratelimit.Limiter
	AllowedOrigin string
	Version       string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := handlers.NewHandler(d.Registry, d.History, d.Audit)
	healthHandler := handlers.NewHealthHandler(d.Version, d.Registry.Count, d.Checks)

	r.Use(middleware.CORS(d.AllowedOrigin))

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.HandleWS(d.Registry, d.WSLimiter, d.AllowedOrigin))

	v1 := r.Group("/api/v1")
	if d.APILimiter != nil {
		v1.Use(middleware.RateLimit(d.APILimiter))
	}
	v1.GET("/lobbies", h.ListLobbies)
	v1.GET("/lobbies/:id", h.GetLobby)
	v1.GET("/history", h.ListHistory)
	v1.GET("/history/:id", h.GetHistory)

	// Admin routes exist only when a signing secret is configured.
	if service.JWTEnabled() {
		admin := v1.Group("/admin", middleware.AdminJWT())
		admin.POST("/lobbies/:id/end", h.EndLobby)
		admin.GET("/audit", h.AuditLogs)
	}
}
