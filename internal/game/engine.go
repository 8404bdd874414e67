package game

import (
	"fmt"

	"monopoly_server/internal/board"
)

type TurnState string

const (
	StateAwaitingRoll    TurnState = "AWAITING_ROLL"
	StateResolving       TurnState = "RESOLVING"
	StateAwaitingChoice  TurnState = "AWAITING_CHOICE"
	StateAwaitingEndTurn TurnState = "AWAITING_END_TURN"
	StateFinished        TurnState = "FINISHED"
)

const maxDoubles = 3

// Seat is a player entering a game, in turn order.
type Seat struct {
	ID   string
	Name string
	Pawn string
}

type debt struct {
	debtor     string
	creditor   string
	amount     int64
	reason     Reason
	propertyID int
	// then runs once the debt is paid and reports whether it blocked on a
	// new choice.
	then func() bool
}

type auction struct {
	propertyID int
	bidders    []string
	next       int
	best       string
	bestBid    int64
}

// Engine runs the turn state machine of one game. It is not safe for
// concurrent use; the owning session serializes every call.
type Engine struct {
	board  *board.Board
	rules  Rules
	rng    Randomizer
	ledger *Ledger
	broker *ChoiceBroker

	players []*Player
	byID    map[string]*Player
	current int
	state   TurnState
	turn    int

	doubles   int
	rollAgain bool
	dice      [2]int

	debt    *debt
	auction *auction

	events []Event
	fault  error

	winner     string
	overReason string
}

func NewEngine(b *board.Board, rules Rules, rng Randomizer, seats []Seat) (*Engine, error) {
	if len(seats) < rules.MinPlayers || len(seats) < 2 {
		return nil, NewError(CodeNotEnoughPlayers, "need at least %d players", max(rules.MinPlayers, 2))
	}
	if rng == nil {
		rng = CryptoRandomizer{}
	}
	e := &Engine{
		board:  b,
		rules:  rules,
		rng:    rng,
		broker: NewChoiceBroker(rules.ChoiceTimeout),
		byID:   make(map[string]*Player, len(seats)),
		state:  StateAwaitingRoll,
	}
	for _, s := range seats {
		if _, dup := e.byID[s.ID]; dup {
			return nil, internalf("duplicate player %s", s.ID)
		}
		p := &Player{ID: s.ID, Name: s.Name, Pawn: s.Pawn, Balance: rules.StartingBalance}
		e.players = append(e.players, p)
		e.byID[p.ID] = p
	}
	e.ledger = NewLedger(b, e.players, rules.MaxLevel)
	return e, nil
}

// Start announces the turn order and opens the first turn.
func (e *Engine) Start() []Event {
	order := make([]string, len(e.players))
	for i, p := range e.players {
		order[i] = p.ID
	}
	e.emit(EventGameStart, map[string]any{"turnOrder": order})
	for _, p := range e.players {
		e.emit(EventPlayerData, e.PlayerData(p.ID))
	}
	e.current = 0
	e.startTurn()
	events, _ := e.take()
	return events
}

func (e *Engine) State() TurnState { return e.state }
func (e *Engine) Turn() int { return e.turn }
func (e *Engine) Ledger() *Ledger { return e.ledger }
func (e *Engine) Pending() *PendingChoice { return e.broker.Pending() }
func (e *Engine) Finished() bool { return e.state == StateFinished }
func (e *Engine) Winner() string { return e.winner }
func (e *Engine) Board() *board.Board { return e.board }

// Current returns the id of the player whose turn it is.
func (e *Engine) Current() string {
	return e.players[e.current].ID
}

func (e *Engine) Player(id string) (*Player, bool) {
	p, ok := e.byID[id]
	return p, ok
}

// Players returns the players in turn order.
func (e *Engine) Players() []*Player {
	return e.players
}

func (e *Engine) PlayerData(id string) PlayerData {
	p := e.byID[id]
	props := []PropertyView{}
	for _, tileID := range e.ledger.PropertiesOf(id) {
		t := e.board.Tiles[tileID]
		props = append(props, PropertyView{
			ID: tileID, Name: t.Name, Color: t.Color,
			Level: e.ledger.Level(tileID), Mortgaged: e.ledger.Mortgaged(tileID),
		})
	}
	return PlayerData{
		PlayerID: p.ID, Name: p.Name, Pawn: p.Pawn,
		Balance: p.Balance, Position: p.Position,
		InJail: p.InJail, Bankrupt: p.Bankrupt, Connected: !p.Left,
		Properties: props,
	}
}

// Roll throws the dice for the current player and resolves the landing tile.
func (e *Engine) Roll(playerID string) ([]Event, error) {
	if err := e.requireTurn(playerID, StateAwaitingRoll); err != nil {
		return nil, err
	}
	p := e.players[e.current]
	d1, d2 := e.rng.Roll()
	e.dice = [2]int{d1, d2}
	e.state = StateResolving

	if d1 == d2 {
		e.doubles++
		if e.doubles >= maxDoubles {
			e.emit(EventSetPosition, SetPositionPayload{PlayerID: p.ID, Position: p.Position, Dice: []int{d1, d2}, Doubles: true})
			e.sendToJail(p)
			e.finishResolution()
			return e.take()
		}
	}
	e.rollAgain = d1 == d2

	e.move(p, d1+d2, true)
	if !e.resolveTile(p) {
		e.finishResolution()
	}
	return e.take()
}

// FinishTurn passes the turn to the next active player.
func (e *Engine) FinishTurn(playerID string) ([]Event, error) {
	if err := e.requireTurn(playerID, StateAwaitingEndTurn); err != nil {
		return nil, err
	}
	e.advance()
	return e.take()
}

// Respond applies playerID's answer to the pending choice.
func (e *Engine) Respond(playerID string, resp Response) ([]Event, error) {
	if e.state == StateFinished {
		return nil, ErrNotAwaited
	}
	c, err := e.broker.Resolve(playerID, resp)
	if err != nil {
		return nil, err
	}
	if err := e.apply(c, resp); err != nil {
		e.events = nil
		return nil, err
	}
	return e.take()
}

// Timeout resolves choiceID with its configured default if it is still
// pending. A stale id yields ErrNotAwaited and no events.
func (e *Engine) Timeout(choiceID string) ([]Event, error) {
	c := e.broker.Pending()
	if c == nil || c.ID != choiceID || e.state == StateFinished {
		return nil, ErrNotAwaited
	}
	if err := e.apply(c, e.defaultResponse(c)); err != nil {
		e.events = nil
		return nil, err
	}
	return e.take()
}

// Upgrade raises a property one level during the current player's turn.
func (e *Engine) Upgrade(playerID string, tileID int) ([]Event, error) {
	return e.manage(playerID, tileID, e.ledger.Upgrade)
}

func (e *Engine) Mortgage(playerID string, tileID int) ([]Event, error) {
	return e.manage(playerID, tileID, e.ledger.Mortgage)
}

func (e *Engine) Unmortgage(playerID string, tileID int) ([]Event, error) {
	return e.manage(playerID, tileID, e.ledger.Unmortgage)
}

func (e *Engine) manage(playerID string, tileID int, op func(string, int) error) ([]Event, error) {
	if err := e.requireTurn(playerID, StateAwaitingRoll, StateAwaitingEndTurn); err != nil {
		return nil, err
	}
	if err := op(playerID, tileID); err != nil {
		return nil, err
	}
	e.flush()
	return e.take()
}

// Disconnect removes playerID from play according to the disconnect policy.
// Calling it twice is a no-op.
func (e *Engine) Disconnect(playerID string) ([]Event, error) {
	p, ok := e.byID[playerID]
	if !ok || p.Left || e.state == StateFinished {
		return nil, nil
	}
	p.Left = true

	if e.rules.DisconnectPolicy == DisconnectSkip {
		if c := e.broker.Pending(); c != nil && c.Target == playerID {
			if err := e.apply(c, e.defaultResponse(c)); err != nil {
				return nil, err
			}
		}
		e.emit(EventPlayerData, e.PlayerData(playerID))
		e.settle()
		return e.take()
	}

	if e.debt != nil && e.debt.creditor == playerID {
		e.debt.creditor = Bank
	}
	c := e.broker.Pending()
	if c != nil && c.Target == playerID && c.Kind != ChoiceAuctionBid {
		e.broker.Close(c.ID)
		e.debt = nil
		e.auction = nil
		e.state = StateResolving
	}
	if !p.Bankrupt {
		e.bankrupt(playerID, Bank)
	}
	if c != nil && c.Target == playerID && c.Kind == ChoiceAuctionBid {
		if err := e.apply(c, Response{ChoiceID: c.ID, Decision: DecisionPass}); err != nil {
			return nil, err
		}
	}
	e.settle()
	return e.take()
}

// settle moves play along when the current player can no longer act.
func (e *Engine) settle() {
	if e.state == StateFinished || e.checkGameOver() {
		return
	}
	if e.state == StateAwaitingChoice {
		return
	}
	if !e.players[e.current].Active() {
		e.advance()
	}
}

func (e *Engine) requireTurn(playerID string, states ...TurnState) error {
	if e.state == StateFinished {
		return NewError(CodeInvalidState, "game is over")
	}
	if _, ok := e.byID[playerID]; !ok {
		return NewError(CodeNotFound, "unknown player")
	}
	if e.players[e.current].ID != playerID {
		return ErrNotYourTurn
	}
	for _, s := range states {
		if e.state == s {
			return nil
		}
	}
	return ErrInvalidState
}

func (e *Engine) startTurn() {
	e.turn++
	e.doubles = 0
	e.rollAgain = false
	p := e.players[e.current]
	e.emit(EventNextTurn, NextTurnPayload{PlayerID: p.ID, Turn: e.turn})
	if p.InJail {
		e.askJail(p)
		return
	}
	e.state = StateAwaitingRoll
}

func (e *Engine) advance() {
	if e.checkGameOver() {
		return
	}
	n := len(e.players)
	for i := 1; i <= n; i++ {
		idx := (e.current + i) % n
		if e.players[idx].Active() {
			e.current = idx
			break
		}
	}
	e.startTurn()
}

// finishResolution ends the resolving phase of the current roll.
func (e *Engine) finishResolution() {
	if e.state == StateFinished || e.checkGameOver() {
		return
	}
	p := e.players[e.current]
	if !p.Active() {
		e.advance()
		return
	}
	if e.rollAgain && !p.InJail {
		e.rollAgain = false
		e.state = StateAwaitingRoll
		return
	}
	e.rollAgain = false
	e.state = StateAwaitingEndTurn
}

func (e *Engine) checkGameOver() bool {
	if e.state == StateFinished {
		return true
	}
	var last *Player
	active := 0
	for _, p := range e.players {
		if p.Active() {
			active++
			last = p
		}
	}
	if active > 1 {
		return false
	}
	e.state = StateFinished
	e.overReason = "abandoned"
	if last != nil {
		e.winner = last.ID
		e.overReason = "last player standing"
	}
	if c := e.broker.Pending(); c != nil {
		e.broker.Close(c.ID)
	}
	e.debt = nil
	e.auction = nil
	e.emit(EventGameOver, GameOverPayload{Winner: e.winner, Reason: e.overReason})
	return true
}

// move advances p by steps, paying the salary when start is passed.
func (e *Engine) move(p *Player, steps int, rolled bool) {
	n := e.board.Len()
	wrapped := p.Position+steps >= n
	p.Position = (p.Position + steps) % n
	pl := SetPositionPayload{PlayerID: p.ID, Position: p.Position}
	if rolled {
		pl.Dice = []int{e.dice[0], e.dice[1]}
		pl.Doubles = e.dice[0] == e.dice[1]
	}
	e.emit(EventSetPosition, pl)
	if wrapped && steps > 0 {
		e.ledgerErr(e.ledger.transfer(Bank, p.ID, e.rules.GoSalary, ReasonSalary, -1))
	}
}

func (e *Engine) sendToJail(p *Player) {
	p.Position = e.board.JailPosition
	p.InJail = true
	p.JailTurns = e.rules.JailTurns
	e.rollAgain = false
	e.emit(EventSetPosition, SetPositionPayload{PlayerID: p.ID, Position: p.Position})
	e.emit(EventJail, JailPayload{PlayerID: p.ID, InJail: true, TurnsLeft: p.JailTurns})
}

func (e *Engine) release(p *Player) {
	p.InJail = false
	p.JailTurns = 0
	e.emit(EventJail, JailPayload{PlayerID: p.ID, InJail: false})
}

// resolveTile applies the effect of p's tile. It reports whether the flow
// is now blocked on a choice.
func (e *Engine) resolveTile(p *Player) bool {
	tile := e.board.Tiles[p.Position]
	switch tile.Type {
	case board.TileStart, board.TileJail, board.TileParking:
		return false
	case board.TileProperty, board.TileRailway, board.TileUtility:
		return e.resolveProperty(p, tile)
	case board.TileChance:
		return e.drawCard(p, tile, e.board.Chance)
	case board.TileCommunityChest:
		return e.drawCard(p, tile, e.board.CommunityChest)
	case board.TilePenalty:
		amount := tile.Rent(0)
		e.emit(EventTileMessage, TileMessagePayload{PlayerID: p.ID, TileID: tile.ID, Message: fmt.Sprintf("%s: pay %d", tile.Name, amount)})
		return e.charge(p.ID, Bank, amount, ReasonPenalty, tile.ID, nil)
	case board.TileGoToJail:
		e.sendToJail(p)
		return false
	}
	e.fail(internalf("unhandled tile type %q", tile.Type))
	return false
}

func (e *Engine) resolveProperty(p *Player, tile board.Tile) bool {
	owner, owned := e.ledger.Owner(tile.ID)
	if !owned {
		return e.offerPurchase(p, tile)
	}
	if owner == p.ID || e.ledger.Mortgaged(tile.ID) || e.byID[owner].Bankrupt {
		return false
	}
	return e.charge(p.ID, owner, e.Rent(tile.ID), ReasonRent, tile.ID, nil)
}

// Rent is what landing on tileID costs right now given its owner's holdings.
func (e *Engine) Rent(tileID int) int64 {
	owner, owned := e.ledger.Owner(tileID)
	if !owned || e.ledger.Mortgaged(tileID) {
		return 0
	}
	tile := e.board.Tiles[tileID]
	switch tile.Type {
	case board.TileRailway:
		return tile.Rent(e.ledger.CountOwned(owner, board.TileRailway) - 1)
	case board.TileUtility:
		return int64(e.dice[0]+e.dice[1]) * tile.Rent(e.ledger.CountOwned(owner, board.TileUtility)-1)
	}
	lvl := e.ledger.Level(tileID)
	if lvl == 0 && e.ledger.OwnsGroup(owner, tileID) {
		return 2 * tile.Rent(0)
	}
	return tile.Rent(lvl)
}

func (e *Engine) offerPurchase(p *Player, tile board.Tile) bool {
	price := tile.Price()
	var opts []Option
	if p.Balance >= price {
		opts = append(opts, Option{Label: DecisionBuy, Description: fmt.Sprintf("Buy %s for %d", tile.Name, price)})
	}
	if e.rules.AuctionsEnabled {
		opts = append(opts, Option{Label: DecisionAuction, Description: "Put it up for auction"})
	}
	opts = append(opts, Option{Label: DecisionPass, Description: "Leave it with the bank"})
	id := tile.ID
	e.ask(p.ID, ChoiceBuyOrAuction, ChoicePayload{
		Message:    fmt.Sprintf("%s is for sale for %d", tile.Name, price),
		Options:    opts,
		PropertyID: &id,
		Amount:     price,
	})
	return true
}

func (e *Engine) drawCard(p *Player, tile board.Tile, deck []board.Card) bool {
	if len(deck) == 0 {
		return false
	}
	card := deck[e.rng.Intn(len(deck))]
	e.emit(EventTileMessage, TileMessagePayload{PlayerID: p.ID, TileID: tile.ID, Message: card.Message})
	switch card.Action {
	case board.CardMoney:
		if card.Amount >= 0 {
			e.ledgerErr(e.ledger.transfer(Bank, p.ID, card.Amount, ReasonCard, -1))
			return false
		}
		return e.charge(p.ID, Bank, -card.Amount, ReasonCard, -1, nil)
	case board.CardAdvance:
		n := e.board.Len()
		e.move(p, (card.Position-p.Position+n)%n, false)
		switch e.board.Tiles[p.Position].Type {
		case board.TileChance, board.TileCommunityChest:
			return false
		}
		return e.resolveTile(p)
	case board.CardJail:
		e.sendToJail(p)
		return false
	}
	e.fail(internalf("unhandled card action %q", card.Action))
	return false
}

// charge collects an owed amount. A short payer gets a PAY_OR_MORTGAGE
// choice; one who cannot cover it at all goes bankrupt.
func (e *Engine) charge(debtor, creditor string, amount int64, reason Reason, propertyID int, then func() bool) bool {
	err := e.ledger.transfer(debtor, creditor, amount, reason, propertyID)
	if err == nil {
		e.flush()
		if then != nil {
			return then()
		}
		return false
	}
	if CodeOf(err) == CodeInsufficientFunds {
		e.debt = &debt{debtor: debtor, creditor: creditor, amount: amount, reason: reason, propertyID: propertyID, then: then}
		e.askDebt()
		return true
	}
	if CodeOf(err) == CodeBankruptcy {
		e.bankrupt(debtor, creditor)
		return false
	}
	e.fail(err)
	return false
}

func (e *Engine) bankrupt(debtor, creditor string) {
	if creditor != Bank && e.rules.BankruptcyCreditor == CreditorBank {
		creditor = Bank
	}
	if err := e.ledger.DeclareBankruptcy(debtor, creditor); err != nil {
		e.fail(err)
		return
	}
	e.flush()
	e.emit(EventBankruptcy, BankruptcyPayload{PlayerID: debtor, Creditor: creditor})
	e.emit(EventPlayerData, e.PlayerData(debtor))
	if creditor != Bank {
		e.emit(EventPlayerData, e.PlayerData(creditor))
	}
}

func (e *Engine) askJail(p *Player) {
	var opts []Option
	if p.Balance >= e.rules.JailFine {
		opts = append(opts, Option{Label: DecisionPayFine, Description: fmt.Sprintf("Pay %d and roll normally", e.rules.JailFine)})
	}
	opts = append(opts, Option{Label: DecisionRoll, Description: "Try to roll doubles"})
	e.ask(p.ID, ChoiceJailAction, ChoicePayload{
		Message: fmt.Sprintf("You are in jail, %d tries left", p.JailTurns),
		Options: opts,
		Amount:  e.rules.JailFine,
	})
}

func (e *Engine) askDebt() {
	d := e.debt
	p := e.byID[d.debtor]
	var opts []Option
	mortgageable := e.ledger.Mortgageable(d.debtor)
	upgraded := e.ledger.Upgraded(d.debtor)
	if len(mortgageable) > 0 {
		opts = append(opts, Option{Label: DecisionMortgage, Description: "Mortgage a property"})
	}
	if len(upgraded) > 0 {
		opts = append(opts, Option{Label: DecisionSellUpgrade, Description: "Sell an upgrade"})
	}
	if p.Balance >= d.amount {
		opts = append(opts, Option{Label: DecisionPay, Description: fmt.Sprintf("Pay %d", d.amount)})
	}
	opts = append(opts, Option{Label: DecisionBankrupt, Description: "Give up everything"})
	e.ask(d.debtor, ChoicePayOrMortgage, ChoicePayload{
		Message:    fmt.Sprintf("You owe %d (%s) and have %d", d.amount, d.reason, p.Balance),
		Options:    opts,
		Amount:     d.amount,
		Creditor:   d.creditor,
		Candidates: append(append([]int{}, mortgageable...), upgraded...),
	})
}

func (e *Engine) startAuction(tileID int) {
	a := &auction{propertyID: tileID}
	n := len(e.players)
	for i := 0; i < n; i++ {
		p := e.players[(e.current+i)%n]
		if p.Active() {
			a.bidders = append(a.bidders, p.ID)
		}
	}
	e.auction = a
	e.emit(EventAuction, AuctionPayload{PropertyID: tileID})
	e.askBid()
}

// askBid asks the next bidder or settles the auction. It reports whether a
// choice is pending afterwards.
func (e *Engine) askBid() bool {
	a := e.auction
	for a.next < len(a.bidders) {
		p := e.byID[a.bidders[a.next]]
		if !p.Active() || p.Balance <= 0 {
			a.next++
			continue
		}
		tile := e.board.Tiles[a.propertyID]
		id := tile.ID
		e.ask(p.ID, ChoiceAuctionBid, ChoicePayload{
			Message: fmt.Sprintf("Sealed bid for %s", tile.Name),
			Options: []Option{
				{Label: DecisionBid, Description: fmt.Sprintf("Bid between 1 and %d", p.Balance)},
				{Label: DecisionPass, Description: "Do not bid"},
			},
			PropertyID: &id,
			Amount:     tile.Price(),
		})
		return e.broker.Pending() != nil
	}

	e.auction = nil
	winner := a.best
	if winner != "" && e.byID[winner].Active() {
		if err := e.ledger.Spend(winner, a.bestBid, ReasonAuction, a.propertyID); err != nil {
			e.fail(err)
			return false
		}
		e.ledgerErr(e.ledger.TransferProperty(a.propertyID, winner, ReasonAuction))
		e.emit(EventAuction, AuctionPayload{PropertyID: a.propertyID, Winner: winner, Amount: a.bestBid})
	} else {
		e.emit(EventAuction, AuctionPayload{PropertyID: a.propertyID})
	}
	e.finishResolution()
	return false
}

// ask opens a choice. Choices for players who can no longer act are
// answered with their defaults straight away.
func (e *Engine) ask(target string, kind ChoiceKind, payload ChoicePayload) {
	c, err := e.broker.Ask(target, kind, payload)
	if err != nil {
		e.fail(err)
		return
	}
	e.state = StateAwaitingChoice
	if p := e.byID[target]; !p.Active() {
		if err := e.apply(c, e.defaultResponse(c)); err != nil {
			e.fail(err)
		}
		return
	}
	e.events = append(e.events, Event{Kind: EventChoice, Payload: c.Payload, Recipients: []string{target}})
}

func (e *Engine) defaultResponse(c *PendingChoice) Response {
	resp := Response{ChoiceID: c.ID, Decision: e.rules.TimeoutDefaults[c.Kind]}
	switch {
	case resp.Decision == DecisionAuto && c.Kind == ChoicePayOrMortgage:
	case resp.Decision != "" && c.offers(resp.Decision):
	default:
		switch c.Kind {
		case ChoiceJailAction:
			resp.Decision = DecisionRoll
		case ChoicePayOrMortgage:
			resp.Decision = DecisionAuto
		default:
			resp.Decision = DecisionPass
		}
	}
	return resp
}

func (e *Engine) apply(c *PendingChoice, resp Response) error {
	switch c.Kind {
	case ChoiceBuyOrAuction:
		return e.applyPurchase(c, resp)
	case ChoiceAuctionBid:
		return e.applyBid(c, resp)
	case ChoiceJailAction:
		return e.applyJail(c, resp)
	case ChoicePayOrMortgage:
		return e.applyDebt(c, resp)
	}
	return internalf("unhandled choice kind %q", c.Kind)
}

func (e *Engine) applyPurchase(c *PendingChoice, resp Response) error {
	tileID := *c.Payload.PropertyID
	switch resp.Decision {
	case DecisionBuy:
		if err := e.ledger.Spend(c.Target, c.Payload.Amount, ReasonPurchase, tileID); err != nil {
			return err
		}
		e.broker.Close(c.ID)
		e.ledgerErr(e.ledger.TransferProperty(tileID, c.Target, ReasonPurchase))
		e.finishResolution()
	case DecisionAuction:
		e.broker.Close(c.ID)
		e.startAuction(tileID)
	default:
		e.broker.Close(c.ID)
		e.finishResolution()
	}
	return nil
}

func (e *Engine) applyBid(c *PendingChoice, resp Response) error {
	a := e.auction
	if a == nil {
		return internalf("bid without auction")
	}
	if resp.Decision == DecisionBid {
		if resp.Amount <= 0 || resp.Amount > e.ledger.Balance(c.Target) {
			return NewError(CodeInvalidAction, "bid must be between 1 and your balance")
		}
		if resp.Amount > a.bestBid {
			a.best, a.bestBid = c.Target, resp.Amount
		}
	}
	e.broker.Close(c.ID)
	a.next++
	e.askBid()
	return nil
}

func (e *Engine) applyJail(c *PendingChoice, resp Response) error {
	p := e.byID[c.Target]
	if resp.Decision == DecisionPayFine {
		if err := e.ledger.Spend(p.ID, e.rules.JailFine, ReasonJailFine, -1); err != nil {
			return err
		}
		e.broker.Close(c.ID)
		e.flush()
		e.release(p)
		e.state = StateAwaitingRoll
		e.settle()
		return nil
	}

	e.broker.Close(c.ID)
	d1, d2 := e.rng.Roll()
	e.dice = [2]int{d1, d2}
	e.state = StateResolving
	e.rollAgain = false
	e.emit(EventSetPosition, SetPositionPayload{PlayerID: p.ID, Position: p.Position, Dice: []int{d1, d2}, Doubles: d1 == d2})

	if d1 == d2 {
		e.release(p)
		e.move(p, d1+d2, true)
		if !e.resolveTile(p) {
			e.finishResolution()
		}
		return nil
	}

	p.JailTurns--
	if p.JailTurns > 0 {
		e.emit(EventJail, JailPayload{PlayerID: p.ID, InJail: true, TurnsLeft: p.JailTurns})
		e.finishResolution()
		return nil
	}

	blocked := e.charge(p.ID, Bank, e.rules.JailFine, ReasonJailFine, -1, func() bool {
		e.release(p)
		e.move(p, d1+d2, true)
		return e.resolveTile(p)
	})
	if !blocked {
		e.finishResolution()
	}
	return nil
}

func (e *Engine) applyDebt(c *PendingChoice, resp Response) error {
	d := e.debt
	if d == nil {
		return internalf("debt choice without debt")
	}
	switch resp.Decision {
	case DecisionMortgage, DecisionSellUpgrade:
		if resp.PropertyID == nil {
			return NewError(CodeInvalidAction, "propertyId is required")
		}
		op := e.ledger.Mortgage
		if resp.Decision == DecisionSellUpgrade {
			op = e.ledger.SellUpgrade
		}
		if err := op(d.debtor, *resp.PropertyID); err != nil {
			return err
		}
		e.broker.Close(c.ID)
		e.flush()
		e.askDebt()
		return nil

	case DecisionPay:
		if err := e.ledger.transfer(d.debtor, d.creditor, d.amount, d.reason, d.propertyID); err != nil {
			return err
		}
		e.broker.Close(c.ID)
		e.debt = nil
		e.flush()
		if d.then == nil || !d.then() {
			e.finishResolution()
		}
		return nil

	case DecisionAuto:
		e.broker.Close(c.ID)
		e.debt = nil
		if e.ledger.Liquidate(d.debtor, d.amount) {
			e.ledgerErr(e.ledger.transfer(d.debtor, d.creditor, d.amount, d.reason, d.propertyID))
			if d.then == nil || !d.then() {
				e.finishResolution()
			}
			return nil
		}
		e.flush()
		e.bankrupt(d.debtor, d.creditor)
		e.finishResolution()
		return nil
	}

	e.broker.Close(c.ID)
	e.debt = nil
	e.bankrupt(d.debtor, d.creditor)
	e.finishResolution()
	return nil
}

// Standing summarizes a player's final position.
type Standing struct {
	PlayerID string
	Name     string
	Balance  int64
	NetWorth int64
	Bankrupt bool
}

func (e *Engine) Standings() []Standing {
	out := make([]Standing, 0, len(e.players))
	for _, p := range e.players {
		worth := p.Balance
		for _, id := range e.ledger.PropertiesOf(p.ID) {
			tile := e.board.Tiles[id]
			if e.ledger.Mortgaged(id) {
				worth += tile.MortgageValue()
			} else {
				worth += tile.Price()
			}
			for lvl := e.ledger.Level(id); lvl > 0; lvl-- {
				cost, _ := tile.UpgradeCost(lvl)
				worth += cost
			}
		}
		out = append(out, Standing{PlayerID: p.ID, Name: p.Name, Balance: p.Balance, NetWorth: worth, Bankrupt: p.Bankrupt})
	}
	return out
}

// OverReason explains why the game finished.
func (e *Engine) OverReason() string {
	return e.overReason
}

func (e *Engine) emit(kind EventKind, payload any) {
	e.events = append(e.events, Event{Kind: kind, Payload: payload})
}

func (e *Engine) fail(err error) {
	if e.fault == nil {
		e.fault = err
	}
}

func (e *Engine) ledgerErr(err error) {
	if err != nil {
		e.fail(err)
		return
	}
	e.flush()
}

// take returns the queued events, or the first invariant violation.
func (e *Engine) take() ([]Event, error) {
	e.flush()
	events := e.events
	e.events = nil
	if e.fault != nil {
		return nil, e.fault
	}
	return events, nil
}

// flush turns pending ledger records into events.
func (e *Engine) flush() {
	for _, r := range e.ledger.Drain() {
		switch r.Kind {
		case RecordMoney:
			pub := TransactionPayload{From: r.From, To: r.To, Amount: r.Amount, Reason: r.Reason}
			if r.PropertyID >= 0 {
				id := r.PropertyID
				pub.PropertyID = &id
			}
			ev := Event{Kind: EventTransaction, Payload: pub, Private: map[string]any{}}
			if r.From != Bank {
				own := pub
				bal := r.FromBalance
				own.Balance = &bal
				ev.Private[r.From] = own
			}
			if r.To != Bank {
				own := pub
				bal := r.ToBalance
				own.Balance = &bal
				ev.Private[r.To] = own
			}
			e.events = append(e.events, ev)
		case RecordProperty:
			pl := PropertyTransferPayload{
				PropertyID: r.PropertyID, Name: e.board.Tiles[r.PropertyID].Name,
				Mortgaged: r.Mortgaged, Reason: r.Reason,
			}
			if r.From != Bank {
				from := r.From
				pl.From = &from
			}
			if r.To != Bank {
				to := r.To
				pl.To = &to
			}
			e.emit(EventPropertyTransfer, pl)
		case RecordLevel:
			e.emit(EventPropertyUpgrade, PropertyUpgradePayload{PropertyID: r.PropertyID, Owner: r.From, Level: r.Level})
		case RecordMortgage:
			e.emit(EventPropertyMortgage, PropertyMortgagePayload{PropertyID: r.PropertyID, Owner: r.From, Mortgaged: r.Mortgaged})
		}
	}
}
