package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"monopoly_server/internal/domain"
	"monopoly_server/internal/logger"
)

type memAudit struct {
	logs []*domain.AuditLog
	err  error
}

func (m *memAudit) Create(_ context.Context, log *domain.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *memAudit) ListRecent(_ context.Context, limit int) ([]*domain.AuditLog, error) {
	return m.logs, nil
}

func TestAuditService(t *testing.T) {
	logger.InitWriter(io.Discard, "error", false)
	ctx := context.Background()

	store := &memAudit{}
	s := NewAuditService(store)
	s.LogAdminAction(ctx, "ops", domain.AuditActionLobbyEnd, "ABC123", "10.0.0.1", "curl", map[string]any{"reason": "x"})

	logs, err := s.GetRecentLogs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Actor != "ops" || logs[0].LobbyID != "ABC123" {
		t.Fatalf("logs = %+v", logs)
	}

	// store errors are logged, not returned
	store.err = errors.New("db down")
	s.LogAdminAction(ctx, "ops", domain.AuditActionLobbyEnd, "ABC123", "", "", nil)

	empty := NewAuditService(nil)
	empty.LogAdminAction(ctx, "ops", domain.AuditActionLobbyEnd, "ABC123", "", "", nil)
	if logs, err := empty.GetRecentLogs(ctx, 10); err != nil || len(logs) != 0 {
		t.Fatalf("nil store: %v %v", logs, err)
	}
}
