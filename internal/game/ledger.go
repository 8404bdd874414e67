package game

import (
	"sort"

	"monopoly_server/internal/board"
)

// Bank is the counterparty id for money and property held by the bank.
const Bank = "bank"

type Reason string

const (
	ReasonSalary      Reason = "salary"
	ReasonRent        Reason = "rent"
	ReasonPurchase    Reason = "purchase"
	ReasonAuction     Reason = "auction"
	ReasonCard        Reason = "card"
	ReasonPenalty     Reason = "penalty"
	ReasonJailFine    Reason = "jail fine"
	ReasonUpgrade     Reason = "upgrade"
	ReasonSellUpgrade Reason = "sell upgrade"
	ReasonMortgage    Reason = "mortgage"
	ReasonUnmortgage  Reason = "unmortgage"
	ReasonBankruptcy  Reason = "bankruptcy"
)

type RecordKind int

const (
	RecordMoney RecordKind = iota
	RecordProperty
	RecordLevel
	RecordMortgage
)

// TransactionRecord describes one completed ledger mutation.
type TransactionRecord struct {
	Kind       RecordKind
	From       string
	To         string
	Amount     int64
	PropertyID int
	Level      int
	Mortgaged  bool
	Reason     Reason

	// Balances right after a money record; zero for the bank.
	FromBalance int64
	ToBalance   int64
}

// Ledger owns balances and the property table. Every change to either goes
// through it and leaves a record for the engine to turn into events.
type Ledger struct {
	board   *board.Board
	players map[string]*Player

	owners    map[int]string
	levels    map[int]int
	mortgaged map[int]bool
	maxLevel  int

	bankIn  int64
	bankOut int64
	records []TransactionRecord
}

func NewLedger(b *board.Board, players []*Player, maxLevel int) *Ledger {
	l := &Ledger{
		board:     b,
		players:   make(map[string]*Player, len(players)),
		owners:    make(map[int]string),
		levels:    make(map[int]int),
		mortgaged: make(map[int]bool),
		maxLevel:  maxLevel,
	}
	for _, p := range players {
		l.players[p.ID] = p
	}
	return l
}

// Drain returns and clears the records accumulated since the last call.
func (l *Ledger) Drain() []TransactionRecord {
	out := l.records
	l.records = nil
	return out
}

// BankFlow returns the totals the bank has received and paid out.
func (l *Ledger) BankFlow() (in, out int64) {
	return l.bankIn, l.bankOut
}

func (l *Ledger) Balance(id string) int64 {
	if p, ok := l.players[id]; ok {
		return p.Balance
	}
	return 0
}

// Owner returns the owner of tileID, or false if the bank holds it.
func (l *Ledger) Owner(tileID int) (string, bool) {
	o, ok := l.owners[tileID]
	return o, ok
}

func (l *Ledger) Level(tileID int) int { return l.levels[tileID] }
func (l *Ledger) Mortgaged(tileID int) bool { return l.mortgaged[tileID] }

// PropertiesOf returns the sorted ids of every tile owned by id.
func (l *Ledger) PropertiesOf(id string) []int {
	var out []int
	for tile, owner := range l.owners {
		if owner == id {
			out = append(out, tile)
		}
	}
	sort.Ints(out)
	return out
}

// OwnsGroup reports whether owner holds every tile in tileID's color group.
func (l *Ledger) OwnsGroup(owner string, tileID int) bool {
	group := l.board.Group(tileID)
	if len(group) == 0 {
		return false
	}
	for _, id := range group {
		if l.owners[id] != owner {
			return false
		}
	}
	return true
}

// CountOwned counts the tiles of type t held by owner.
func (l *Ledger) CountOwned(owner string, t board.TileType) int {
	n := 0
	for tile, o := range l.owners {
		if o == owner && l.board.Tiles[tile].Type == t {
			n++
		}
	}
	return n
}

func (l *Ledger) groupHasLevels(tileID int) bool {
	for _, id := range l.board.Group(tileID) {
		if l.levels[id] > 0 {
			return true
		}
	}
	return false
}

// LiquidationValue is what id could raise by selling every level and
// mortgaging every unmortgaged property.
func (l *Ledger) LiquidationValue(id string) int64 {
	var total int64
	for _, tileID := range l.PropertiesOf(id) {
		tile := l.board.Tiles[tileID]
		for lvl := l.levels[tileID]; lvl > 0; lvl-- {
			cost, _ := tile.UpgradeCost(lvl)
			total += cost / 2
		}
		if !l.mortgaged[tileID] {
			total += tile.MortgageValue()
		}
	}
	return total
}

// Transfer moves an owed amount. When the payer is short but could cover the
// debt by liquidating, it returns ErrInsufficientFunds; when even that is not
// enough, a *BankruptcyError. In both cases nothing moves.
func (l *Ledger) Transfer(from, to string, amount int64, reason Reason) error {
	return l.transfer(from, to, amount, reason, -1)
}

func (l *Ledger) transfer(from, to string, amount int64, reason Reason, propertyID int) error {
	if amount < 0 {
		return internalf("negative transfer %d", amount)
	}
	if amount == 0 || from == to {
		return nil
	}
	if from != Bank {
		p, ok := l.players[from]
		if !ok {
			return internalf("unknown payer %s", from)
		}
		if p.Balance < amount {
			if p.Balance+l.LiquidationValue(from) >= amount {
				return ErrInsufficientFunds
			}
			return &BankruptcyError{PlayerID: from, Creditor: to, Amount: amount}
		}
	}
	if to != Bank {
		if _, ok := l.players[to]; !ok {
			return internalf("unknown payee %s", to)
		}
	}

	if from == Bank {
		l.bankOut += amount
	} else {
		l.players[from].Balance -= amount
	}
	if to == Bank {
		l.bankIn += amount
	} else {
		l.players[to].Balance += amount
	}
	l.records = append(l.records, TransactionRecord{
		Kind: RecordMoney, From: from, To: to, Amount: amount, Reason: reason, PropertyID: propertyID,
		FromBalance: l.Balance(from), ToBalance: l.Balance(to),
	})
	return nil
}

// Spend is a voluntary payment to the bank. It never triggers liquidation.
func (l *Ledger) Spend(from string, amount int64, reason Reason, propertyID int) error {
	if l.Balance(from) < amount {
		return ErrInsufficientFunds
	}
	return l.transfer(from, Bank, amount, reason, propertyID)
}

// TransferProperty hands tileID to newOwner. Bank as newOwner returns the tile
// to the bank unmortgaged.
func (l *Ledger) TransferProperty(tileID int, newOwner string, reason Reason) error {
	tile, err := l.board.Tile(tileID)
	if err != nil || !tile.Properties.Purchasable {
		return NewError(CodeNotFound, "tile %d is not a property", tileID)
	}
	prev, owned := l.owners[tileID]
	if !owned {
		prev = Bank
	}
	if prev == newOwner {
		return nil
	}
	if newOwner == Bank {
		delete(l.owners, tileID)
		delete(l.levels, tileID)
		delete(l.mortgaged, tileID)
	} else {
		if _, ok := l.players[newOwner]; !ok {
			return internalf("unknown owner %s", newOwner)
		}
		l.owners[tileID] = newOwner
	}
	l.records = append(l.records, TransactionRecord{
		Kind: RecordProperty, From: prev, To: newOwner, PropertyID: tileID,
		Mortgaged: l.mortgaged[tileID], Reason: reason,
	})
	return nil
}

func (l *Ledger) ownedBy(owner string, tileID int) (board.Tile, error) {
	tile, err := l.board.Tile(tileID)
	if err != nil {
		return board.Tile{}, NewError(CodeNotFound, "no tile %d", tileID)
	}
	if l.owners[tileID] != owner {
		return board.Tile{}, NewError(CodeInvalidAction, "you do not own %s", tile.Name)
	}
	return tile, nil
}

// Upgrade raises tileID one level. The owner needs the whole color group,
// none of it mortgaged.
func (l *Ledger) Upgrade(owner string, tileID int) error {
	tile, err := l.ownedBy(owner, tileID)
	if err != nil {
		return err
	}
	if !tile.Properties.Levelable {
		return NewError(CodeInvalidAction, "%s cannot be upgraded", tile.Name)
	}
	if !l.OwnsGroup(owner, tileID) {
		return NewError(CodeInvalidAction, "you need the whole %s group", tile.Color)
	}
	for _, id := range l.board.Group(tileID) {
		if l.mortgaged[id] {
			return NewError(CodeInvalidAction, "%s group has a mortgaged property", tile.Color)
		}
	}
	next := l.levels[tileID] + 1
	cost, ok := tile.UpgradeCost(next)
	if !ok || next > l.maxLevel {
		return NewError(CodeInvalidAction, "%s is at its maximum level", tile.Name)
	}
	if err := l.Spend(owner, cost, ReasonUpgrade, tileID); err != nil {
		return err
	}
	l.levels[tileID] = next
	l.records = append(l.records, TransactionRecord{
		Kind: RecordLevel, From: owner, To: owner, PropertyID: tileID, Level: next, Reason: ReasonUpgrade,
	})
	return nil
}

// SellUpgrade removes one level; the bank pays half its cost.
func (l *Ledger) SellUpgrade(owner string, tileID int) error {
	tile, err := l.ownedBy(owner, tileID)
	if err != nil {
		return err
	}
	lvl := l.levels[tileID]
	if lvl == 0 {
		return NewError(CodeInvalidAction, "%s has no upgrades", tile.Name)
	}
	cost, _ := tile.UpgradeCost(lvl)
	l.levels[tileID] = lvl - 1
	if lvl == 1 {
		delete(l.levels, tileID)
	}
	l.records = append(l.records, TransactionRecord{
		Kind: RecordLevel, From: owner, To: owner, PropertyID: tileID, Level: lvl - 1, Reason: ReasonSellUpgrade,
	})
	return l.transfer(Bank, owner, cost/2, ReasonSellUpgrade, tileID)
}

// Mortgage pays the owner half the price. The group must have no levels.
func (l *Ledger) Mortgage(owner string, tileID int) error {
	tile, err := l.ownedBy(owner, tileID)
	if err != nil {
		return err
	}
	if l.mortgaged[tileID] {
		return NewError(CodeInvalidAction, "%s is already mortgaged", tile.Name)
	}
	if l.groupHasLevels(tileID) {
		return NewError(CodeInvalidAction, "sell the upgrades in the %s group first", tile.Color)
	}
	l.mortgaged[tileID] = true
	l.records = append(l.records, TransactionRecord{
		Kind: RecordMortgage, From: owner, To: owner, PropertyID: tileID, Mortgaged: true, Reason: ReasonMortgage,
	})
	return l.transfer(Bank, owner, tile.MortgageValue(), ReasonMortgage, tileID)
}

// UnmortgageCost is the mortgage value plus ten percent.
func UnmortgageCost(tile board.Tile) int64 {
	mv := tile.MortgageValue()
	return mv + mv/10
}

func (l *Ledger) Unmortgage(owner string, tileID int) error {
	tile, err := l.ownedBy(owner, tileID)
	if err != nil {
		return err
	}
	if !l.mortgaged[tileID] {
		return NewError(CodeInvalidAction, "%s is not mortgaged", tile.Name)
	}
	if err := l.Spend(owner, UnmortgageCost(tile), ReasonUnmortgage, tileID); err != nil {
		return err
	}
	delete(l.mortgaged, tileID)
	l.records = append(l.records, TransactionRecord{
		Kind: RecordMortgage, From: owner, To: owner, PropertyID: tileID, Mortgaged: false, Reason: ReasonUnmortgage,
	})
	return nil
}

// Mortgageable lists owner's tiles that Mortgage would accept.
func (l *Ledger) Mortgageable(owner string) []int {
	var out []int
	for _, id := range l.PropertiesOf(owner) {
		if !l.mortgaged[id] && !l.groupHasLevels(id) {
			out = append(out, id)
		}
	}
	return out
}

// Upgraded lists owner's tiles with at least one level.
func (l *Ledger) Upgraded(owner string) []int {
	var out []int
	for _, id := range l.PropertiesOf(owner) {
		if l.levels[id] > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Liquidate sells levels, then mortgages, until id holds at least target or
// runs out of assets. It reports whether target was reached.
func (l *Ledger) Liquidate(id string, target int64) bool {
	for l.Balance(id) < target {
		if ups := l.Upgraded(id); len(ups) > 0 {
			best := ups[0]
			for _, t := range ups[1:] {
				if l.levels[t] > l.levels[best] {
					best = t
				}
			}
			if err := l.SellUpgrade(id, best); err != nil {
				return false
			}
			continue
		}
		ms := l.Mortgageable(id)
		if len(ms) == 0 {
			return false
		}
		if err := l.Mortgage(id, ms[0]); err != nil {
			return false
		}
	}
	return true
}

// DeclareBankruptcy strips debtor. Levels are sold back to the bank, then
// cash and properties go to creditor. A bank creditor takes the cash and
// returns the properties to the market unmortgaged.
func (l *Ledger) DeclareBankruptcy(debtor, creditor string) error {
	p, ok := l.players[debtor]
	if !ok {
		return internalf("unknown debtor %s", debtor)
	}
	for _, id := range l.Upgraded(debtor) {
		for l.levels[id] > 0 {
			if err := l.SellUpgrade(debtor, id); err != nil {
				return err
			}
		}
	}
	if p.Balance > 0 {
		if err := l.transfer(debtor, creditor, p.Balance, ReasonBankruptcy, -1); err != nil {
			return err
		}
	}
	for _, id := range l.PropertiesOf(debtor) {
		if err := l.TransferProperty(id, creditor, ReasonBankruptcy); err != nil {
			return err
		}
	}
	p.Bankrupt = true
	return nil
}
