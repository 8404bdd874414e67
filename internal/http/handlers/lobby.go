package handlers

import (
	"net/http"
	"strconv"

	"monopoly_server/internal/domain"

	"github.com/gin-gonic/gin"
)

// ListLobbies GET /api/v1/lobbies
func (h *Handler) ListLobbies(c *gin.Context) {
	lobbies := h.Lobbies.List()
	c.JSON(http.StatusOK, gin.H{"lobbies": lobbies, "count": len(lobbies)})
}

// GetLobby GET /api/v1/lobbies/:id
func (h *Handler) GetLobby(c *gin.Context) {
	snap, err := h.Lobbies.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type endLobbyRequest struct {
	Reason string `json:"reason"`
}

// EndLobby POST /api/v1/admin/lobbies/:id/end
func (h *Handler) EndLobby(c *gin.Context) {
	var req endLobbyRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "ended by administrator"
	}

	id := c.Param("id")
	if err := h.Lobbies.End(id, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	h.Audit.LogAdminAction(c.Request.Context(), c.GetString("admin"), domain.AuditActionLobbyEnd,
		id, c.ClientIP(), c.Request.UserAgent(), map[string]any{"reason": req.Reason})

	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

// AuditLogs GET /api/v1/admin/audit?limit=N
func (h *Handler) AuditLogs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	logs, err := h.Audit.GetRecentLogs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
