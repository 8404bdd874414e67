package ws

import (
	"net/http"

	"monopoly_server/internal/logger"
	"monopoly_server/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandleWS upgrades the request and serves the connection until it closes.
// An empty allowedOrigin accepts any origin.
func HandleWS(router Router, limiter ratelimit.Limiter, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade error", "error", err, "ip", c.ClientIP())
			return
		}

		client := NewClient(uuid.NewString(), conn, router, limiter)
		client.log.Info("connection opened", "ip", c.ClientIP())
		go client.Run()
	}
}
