package game

import (
	"time"

	"github.com/google/uuid"
)

type ChoiceKind string

const (
	ChoiceBuyOrAuction  ChoiceKind = "BUY_OR_AUCTION"
	ChoiceAuctionBid    ChoiceKind = "AUCTION_BID"
	ChoiceJailAction    ChoiceKind = "JAIL_ACTION"
	ChoicePayOrMortgage ChoiceKind = "PAY_OR_MORTGAGE"
)

const (
	DecisionBuy         = "BUY"
	DecisionPass        = "PASS"
	DecisionAuction     = "AUCTION"
	DecisionBid         = "BID"
	DecisionPayFine     = "PAY_FINE"
	DecisionRoll        = "ROLL"
	DecisionMortgage    = "MORTGAGE"
	DecisionSellUpgrade = "SELL_UPGRADE"
	DecisionPay         = "PAY"
	DecisionBankrupt    = "BANKRUPT"
	// DecisionAuto is only used by timeouts: liquidate and pay if possible,
	// otherwise go bankrupt.
	DecisionAuto = "AUTO"
)

type Option struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Response is a player's answer to a pending choice.
type Response struct {
	ChoiceID   string `json:"choiceId"`
	Decision   string `json:"decision"`
	PropertyID *int   `json:"propertyId,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
}

// PendingChoice is the one outstanding question of a game.
type PendingChoice struct {
	ID       string
	Target   string
	Kind     ChoiceKind
	Payload  ChoicePayload
	Deadline time.Time
}

func (c *PendingChoice) offers(decision string) bool {
	for _, o := range c.Payload.Options {
		if o.Label == decision {
			return true
		}
	}
	return false
}

// ChoiceBroker holds at most one pending choice and matches responses to it.
type ChoiceBroker struct {
	pending *PendingChoice
	timeout time.Duration
	now     func() time.Time
}

func NewChoiceBroker(timeout time.Duration) *ChoiceBroker {
	return &ChoiceBroker{timeout: timeout, now: time.Now}
}

// Ask registers a choice for target. Asking while another choice is pending
// is an invariant violation.
func (b *ChoiceBroker) Ask(target string, kind ChoiceKind, payload ChoicePayload) (*PendingChoice, error) {
	if b.pending != nil {
		return nil, internalf("choice %s already pending", b.pending.ID)
	}
	c := &PendingChoice{
		ID:     uuid.NewString(),
		Target: target,
		Kind:   kind,
	}
	if b.timeout > 0 {
		c.Deadline = b.now().Add(b.timeout)
		payload.Deadline = c.Deadline.UnixMilli()
	}
	payload.ChoiceID = c.ID
	payload.Kind = kind
	payload.PlayerID = target
	c.Payload = payload
	b.pending = c
	return c, nil
}

func (b *ChoiceBroker) Pending() *PendingChoice {
	return b.pending
}

// Resolve validates resp against the pending choice without clearing it.
// The caller clears it with Close once the decision has been applied.
func (b *ChoiceBroker) Resolve(playerID string, resp Response) (*PendingChoice, error) {
	c := b.pending
	if c == nil || c.Target != playerID || c.ID != resp.ChoiceID {
		return nil, ErrNotAwaited
	}
	if !c.offers(resp.Decision) {
		return nil, NewError(CodeInvalidAction, "%q is not an option", resp.Decision)
	}
	return c, nil
}

// Close clears the pending choice if it is still id.
func (b *ChoiceBroker) Close(id string) {
	if b.pending != nil && b.pending.ID == id {
		b.pending = nil
	}
}
