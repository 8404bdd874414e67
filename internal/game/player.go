package game

// Player is per-player game state. Property ownership lives in the Ledger.
type Player struct {
	ID       string
	Name     string
	Pawn     string
	Balance  int64
	Position int

	InJail bool
	// JailTurns counts the failed escape rolls left before the fine is forced.
	JailTurns int

	Bankrupt bool
	// Left is set when the player disconnected under the skip policy.
	Left bool
}

// Active players take turns and answer choices.
func (p *Player) Active() bool {
	return !p.Bankrupt && !p.Left
}

// PropertyView is the public description of one owned tile.
type PropertyView struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Level     int    `json:"level"`
	Mortgaged bool   `json:"mortgaged"`
}

// PlayerData is the PLAYER_DATA payload.
type PlayerData struct {
	PlayerID   string         `json:"playerId"`
	Name       string         `json:"name"`
	Pawn       string         `json:"pawn"`
	Balance    int64          `json:"balance"`
	Position   int            `json:"position"`
	InJail     bool           `json:"inJail"`
	Bankrupt   bool           `json:"bankrupt"`
	Connected  bool           `json:"connected"`
	Properties []PropertyView `json:"properties"`
}
