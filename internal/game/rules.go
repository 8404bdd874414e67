package game

import "time"

// CreditorPolicy decides who receives a bankrupt player's assets when the
// debt is owed to another player.
type CreditorPolicy string

const (
	CreditorPlayer CreditorPolicy = "creditor"
	CreditorBank   CreditorPolicy = "bank"
)

// DisconnectPolicy decides what happens to a player who drops mid-game.
type DisconnectPolicy string

const (
	// DisconnectForfeit bankrupts the player to the bank.
	DisconnectForfeit DisconnectPolicy = "forfeit"
	// DisconnectSkip keeps the player's assets on the board but removes them
	// from turn order and answers their choices with defaults.
	DisconnectSkip DisconnectPolicy = "skip"
)

type Rules struct {
	StartingBalance    int64
	GoSalary           int64
	JailFine           int64
	JailTurns          int
	MaxLevel           int
	MinPlayers         int
	AuctionsEnabled    bool
	BankruptcyCreditor CreditorPolicy
	DisconnectPolicy   DisconnectPolicy

	// ChoiceTimeout of zero disables choice deadlines.
	ChoiceTimeout   time.Duration
	TimeoutDefaults map[ChoiceKind]string
}

func DefaultRules() Rules {
	return Rules{
		StartingBalance:    1500,
		GoSalary:           200,
		JailFine:           50,
		JailTurns:          3,
		MaxLevel:           5,
		MinPlayers:         2,
		BankruptcyCreditor: CreditorPlayer,
		DisconnectPolicy:   DisconnectForfeit,
		TimeoutDefaults: map[ChoiceKind]string{
			ChoiceBuyOrAuction:  DecisionPass,
			ChoiceAuctionBid:    DecisionPass,
			ChoiceJailAction:    DecisionRoll,
			ChoicePayOrMortgage: DecisionAuto,
		},
	}
}

// ValidTimeoutDefault reports whether decision may be configured as the
// timeout resolution for kind. Decisions that need extra input (a property
// id or a bid amount) are not allowed.
func ValidTimeoutDefault(kind ChoiceKind, decision string) bool {
	switch kind {
	case ChoiceBuyOrAuction:
		return decision == DecisionPass || decision == DecisionBuy || decision == DecisionAuction
	case ChoiceAuctionBid:
		return decision == DecisionPass
	case ChoiceJailAction:
		return decision == DecisionRoll || decision == DecisionPayFine
	case ChoicePayOrMortgage:
		return decision == DecisionAuto || decision == DecisionBankrupt
	}
	return false
}
