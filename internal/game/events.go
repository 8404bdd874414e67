package game

// EventKind is the outbound message type.
type EventKind string

const (
	EventNewGame          EventKind = "NEW_GAME"
	EventNewPlayer        EventKind = "NEW_PLAYER"
	EventJoinGame         EventKind = "JOIN_GAME"
	EventGameStart        EventKind = "GAME_START"
	EventNextTurn         EventKind = "NEXT_TURN"
	EventPlayerData       EventKind = "PLAYER_DATA"
	EventSetPosition      EventKind = "SET_POSITION"
	EventTransaction      EventKind = "TRANSACTION"
	EventPropertyTransfer EventKind = "PROPERTY_TRANSFER"
	EventPropertyUpgrade  EventKind = "PROPERTY_UPGRADE"
	EventPropertyMortgage EventKind = "PROPERTY_MORTGAGE"
	EventChoice           EventKind = "CHOICE"
	EventTileMessage      EventKind = "TILE_MESSAGE"
	EventJail             EventKind = "JAIL"
	EventAuction          EventKind = "AUCTION"
	EventBankruptcy       EventKind = "BANKRUPTCY"
	EventGameOver         EventKind = "GAME_OVER"
	EventGameEnd          EventKind = "GAME_END"
	EventPlayerLeft       EventKind = "PLAYER_LEFT"
	EventError            EventKind = "ERROR"
)

// Event is an outbound notification. Recipients empty means every player.
// Private overrides the payload for the listed players.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string
	Private    map[string]any
}

// PayloadFor returns what playerID should receive, or false if the event is
// not addressed to them.
func (e Event) PayloadFor(playerID string) (any, bool) {
	if len(e.Recipients) > 0 {
		found := false
		for _, r := range e.Recipients {
			if r == playerID {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	if p, ok := e.Private[playerID]; ok {
		return p, true
	}
	return e.Payload, true
}

type NextTurnPayload struct {
	PlayerID string `json:"playerId"`
	Turn     int    `json:"turn"`
}

type SetPositionPayload struct {
	PlayerID string `json:"playerId"`
	Position int    `json:"position"`
	Dice     []int  `json:"dice,omitempty"`
	Doubles  bool   `json:"doubles,omitempty"`
}

type TransactionPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     int64  `json:"amount"`
	Reason     Reason `json:"reason"`
	PropertyID *int   `json:"propertyId,omitempty"`
	// Balance is only present in the copy sent to a party of the transfer.
	Balance *int64 `json:"balance,omitempty"`
}

type PropertyTransferPayload struct {
	PropertyID int     `json:"propertyId"`
	Name       string  `json:"name"`
	From       *string `json:"from"`
	To         *string `json:"to"`
	Mortgaged  bool    `json:"mortgaged"`
	Reason     Reason  `json:"reason"`
}

type PropertyUpgradePayload struct {
	PropertyID int    `json:"propertyId"`
	Owner      string `json:"owner"`
	Level      int    `json:"level"`
}

type PropertyMortgagePayload struct {
	PropertyID int    `json:"propertyId"`
	Owner      string `json:"owner"`
	Mortgaged  bool   `json:"mortgaged"`
}

// ChoicePayload is sent in full to the chooser.
type ChoicePayload struct {
	ChoiceID   string     `json:"choiceId"`
	Kind       ChoiceKind `json:"kind"`
	PlayerID   string     `json:"playerId"`
	Message    string     `json:"message"`
	Options    []Option   `json:"options"`
	PropertyID *int       `json:"propertyId,omitempty"`
	Amount     int64      `json:"amount,omitempty"`
	Creditor   string     `json:"creditor,omitempty"`
	// Candidates lists the property ids a MORTGAGE or SELL_UPGRADE may name.
	Candidates []int `json:"candidates,omitempty"`
	Deadline   int64 `json:"deadline,omitempty"`
}

type TileMessagePayload struct {
	PlayerID string `json:"playerId"`
	TileID   int    `json:"tileId"`
	Message  string `json:"message"`
}

type JailPayload struct {
	PlayerID  string `json:"playerId"`
	InJail    bool   `json:"inJail"`
	TurnsLeft int    `json:"turnsLeft"`
}

type AuctionPayload struct {
	PropertyID int    `json:"propertyId"`
	Winner     string `json:"winner,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
}

type BankruptcyPayload struct {
	PlayerID string `json:"playerId"`
	Creditor string `json:"creditor"`
}

type GameOverPayload struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}
