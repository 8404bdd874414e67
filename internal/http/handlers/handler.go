package handlers

import (
	"context"
	"errors"
	"net/http"

	"monopoly_server/internal/domain"
	"monopoly_server/internal/game"
	"monopoly_server/internal/lobby"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// Lobbies is the part of *lobby.Registry the HTTP API reads.
type Lobbies interface {
	List() []lobby.Snapshot
	Get(lobbyID string) (lobby.Snapshot, error)
	End(lobbyID, reason string) error
}

// History is the stored game archive; nil when no database is configured.
type History interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
	GetByID(ctx context.Context, id int64) (*domain.GameRecord, error)
}

type Handler struct {
	Lobbies Lobbies
	History History
	Audit   *service.AuditService
}

func NewHandler(lobbies Lobbies, history History, audit *service.AuditService) *Handler {
	if audit == nil {
		audit = service.NewAuditService(nil)
	}
	return &Handler{Lobbies: lobbies, History: history, Audit: audit}
}

var statusByCode = map[game.Code]int{
	game.CodeNotFound:      http.StatusNotFound,
	game.CodeInvalidState:  http.StatusConflict,
	game.CodeInvalidAction: http.StatusBadRequest,
	game.CodeProtocol:      http.StatusBadRequest,
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var ge *game.Error
	if errors.As(err, &ge) {
		status, ok := statusByCode[ge.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": ge.Message, "code": ge.Code})
		return
	}
	logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
