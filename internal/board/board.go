package board

import (
	"errors"
	"fmt"
)

// TileType is the closed set of tile kinds the engine knows how to resolve.
type TileType string

const (
	TileStart          TileType = "start"
	TileProperty       TileType = "property"
	TileRailway        TileType = "railway"
	TileUtility        TileType = "utility"
	TileChance         TileType = "chance"
	TileCommunityChest TileType = "community chest"
	TilePenalty        TileType = "penalty"
	TileJail           TileType = "jail"
	TileGoToJail       TileType = "go to jail"
	TileParking        TileType = "parking"
)

func (t TileType) valid() bool {
	switch t {
	case TileStart, TileProperty, TileRailway, TileUtility, TileChance,
		TileCommunityChest, TilePenalty, TileJail, TileGoToJail, TileParking:
		return true
	}
	return false
}

type TileFlags struct {
	Purchasable bool `json:"purchasable"`
	Levelable   bool `json:"levelable"`
}

type Tile struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Type          TileType  `json:"type"`
	Color         string    `json:"color"`
	Properties    TileFlags `json:"properties"`
	OwnerCosts    []int64   `json:"owner-costs"`
	TrespassCosts []int64   `json:"trespass-costs"`
}

// Price is the purchase price of a purchasable tile.
func (t Tile) Price() int64 {
	if len(t.OwnerCosts) == 0 {
		return 0
	}
	return t.OwnerCosts[0]
}

// MortgageValue is what the bank pays for mortgaging the tile.
func (t Tile) MortgageValue() int64 {
	return t.Price() / 2
}

// UpgradeCost returns the cost of reaching level, or false if the board has
// no such level for this tile.
func (t Tile) UpgradeCost(level int) (int64, bool) {
	if level <= 0 || level >= len(t.OwnerCosts) {
		return 0, false
	}
	return t.OwnerCosts[level], true
}

// Rent returns trespass-costs[i], clamped to the last entry.
func (t Tile) Rent(i int) int64 {
	if len(t.TrespassCosts) == 0 {
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i >= len(t.TrespassCosts) {
		i = len(t.TrespassCosts) - 1
	}
	return t.TrespassCosts[i]
}

type CardAction string

const (
	CardMoney   CardAction = "money"
	CardAdvance CardAction = "advance"
	CardJail    CardAction = "jail"
)

type Card struct {
	Message  string     `json:"message"`
	Action   CardAction `json:"action"`
	Amount   int64      `json:"amount,omitempty"`
	Position int        `json:"position,omitempty"`
}

type Pawn struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Board is the immutable board model shared read-only by every session.
type Board struct {
	Tiles          []Tile `json:"board"`
	Chance         []Card `json:"chance"`
	CommunityChest []Card `json:"community-chest"`
	JailPosition   int    `json:"jail-position"`
	Pawns          []Pawn `json:"-"`
}

// Len is the number of tiles.
func (b *Board) Len() int {
	return len(b.Tiles)
}

// Tile returns the tile at position pos.
func (b *Board) Tile(pos int) (Tile, error) {
	if pos < 0 || pos >= len(b.Tiles) {
		return Tile{}, fmt.Errorf("tile %d: %w", pos, ErrNoTile)
	}
	return b.Tiles[pos], nil
}

// Group returns the ids of every purchasable tile sharing the color of tile id.
func (b *Board) Group(id int) []int {
	t, err := b.Tile(id)
	if err != nil || t.Color == "" {
		return nil
	}
	var ids []int
	for _, other := range b.Tiles {
		if other.Color == t.Color && other.Properties.Purchasable && other.Type == t.Type {
			ids = append(ids, other.ID)
		}
	}
	return ids
}

// MaxPlayers is bounded by the number of distinct pawns.
func (b *Board) MaxPlayers() int {
	return len(b.Pawns)
}

var ErrNoTile = errors.New("no such tile")

// Validate checks the invariants the engine relies on.
func (b *Board) Validate() error {
	if len(b.Tiles) == 0 {
		return errors.New("board has no tiles")
	}
	jails := 0
	for i, t := range b.Tiles {
		if t.ID != i {
			return fmt.Errorf("tile %q has id %d at index %d", t.Name, t.ID, i)
		}
		if !t.Type.valid() {
			return fmt.Errorf("tile %d: unknown type %q", i, t.Type)
		}
		if t.Properties.Purchasable && t.Price() <= 0 {
			return fmt.Errorf("tile %d: purchasable without price", i)
		}
		switch t.Type {
		case TileProperty, TileRailway, TileUtility:
			if !t.Properties.Purchasable || len(t.TrespassCosts) == 0 {
				return fmt.Errorf("tile %d: %s must be purchasable with rents", i, t.Type)
			}
		case TileJail:
			jails++
			b.JailPosition = i
		}
	}
	if jails != 1 {
		return fmt.Errorf("board must have exactly one jail, found %d", jails)
	}
	for _, deck := range [][]Card{b.Chance, b.CommunityChest} {
		for _, c := range deck {
			switch c.Action {
			case CardMoney, CardJail:
			case CardAdvance:
				if c.Position < 0 || c.Position >= len(b.Tiles) {
					return fmt.Errorf("card %q advances off the board", c.Message)
				}
			default:
				return fmt.Errorf("card %q: unknown action %q", c.Message, c.Action)
			}
		}
	}
	if len(b.Pawns) < 2 {
		return errors.New("pawn set needs at least two pawns")
	}
	return nil
}
