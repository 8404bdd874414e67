package domain

import "time"

// AuditLog represents an audit log entry for tracking administrative actions
type AuditLog struct {
	ID        int64          `db:"id" json:"id"`
	Actor     string         `db:"actor" json:"actor"`
	Action    string         `db:"action" json:"action"`
	LobbyID   string         `db:"lobby_id" json:"lobby_id,omitempty"`
	Details   map[string]any `db:"details" json:"details,omitempty"`
	IP        string         `db:"ip" json:"ip,omitempty"`
	UserAgent string         `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	AuditActionLobbyEnd = "lobby_end"
)
