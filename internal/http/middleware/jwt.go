package middleware

import (
	"net/http"
	"strings"

	"monopoly_server/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminJWT requires a bearer token carrying the admin role. The token
// subject is stored under "admin".
func AdminJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		sub, err := service.ParseAdminJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("admin", sub)
		c.Next()
	}
}
