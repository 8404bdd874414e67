package lobby

import (
	"context"

	"monopoly_server/internal/domain"
)

// Conn is one client connection as seen by the lobby layer.
type Conn interface {
	ID() string
	// Send queues msg without blocking. It reports false when the message
	// was dropped because the connection is slow or closed.
	Send(msg []byte) bool
}

// ResultStore persists finished games.
type ResultStore interface {
	SaveGame(ctx context.Context, rec *domain.GameRecord) error
}
