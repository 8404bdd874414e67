package domain

import "time"

// GameRecord - a finished game as stored in game_history
type GameRecord struct {
	ID         int64              `db:"id" json:"id"`
	LobbyID    string             `db:"lobby_id" json:"lobby_id"`
	WinnerID   *string            `db:"winner_id" json:"winner_id,omitempty"`
	WinnerName *string            `db:"winner_name" json:"winner_name,omitempty"`
	Reason     string             `db:"reason" json:"reason"`
	Turns      int                `db:"turns" json:"turns"`
	Players    []GameRecordPlayer `db:"players" json:"players"`
	StartedAt  time.Time          `db:"started_at" json:"started_at"`
	FinishedAt time.Time          `db:"finished_at" json:"finished_at"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
}

// GameRecordPlayer - final standing of one player, stored as JSON
type GameRecordPlayer struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Pawn     string `json:"pawn"`
	Place    int    `json:"place"`
	Balance  int64  `json:"balance"`
	NetWorth int64  `json:"net_worth"`
	Bankrupt bool   `json:"bankrupt"`
}

// Duration of the game
func (g *GameRecord) Duration() time.Duration {
	return g.FinishedAt.Sub(g.StartedAt)
}
