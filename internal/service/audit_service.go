package service

import (
	"context"

	"monopoly_server/internal/domain"
	"monopoly_server/internal/logger"
)

// AuditStore persists audit entries. *repository.AuditRepository implements it.
type AuditStore interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error)
}

// AuditService handles audit logging. Without a store, entries only go to
// the process log.
type AuditService struct {
	repo AuditStore
}

// NewAuditService creates a new audit service; repo may be nil
func NewAuditService(repo AuditStore) *AuditService {
	return &AuditService{repo: repo}
}

// LogAdminAction records an action taken through the admin API
func (s *AuditService) LogAdminAction(ctx context.Context, actor, action, lobbyID, ip, userAgent string, details map[string]any) {
	logger.Info("admin action", "actor", actor, "action", action, "lobby", lobbyID, "ip", ip)
	if s.repo == nil {
		return
	}

	log := &domain.AuditLog{
		Actor:     actor,
		Action:    action,
		LobbyID:   lobbyID,
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", action, "actor", actor)
	}
}

// GetRecentLogs returns recent audit logs; empty without a store
func (s *AuditService) GetRecentLogs(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	if s.repo == nil {
		return []*domain.AuditLog{}, nil
	}
	return s.repo.ListRecent(ctx, limit)
}
