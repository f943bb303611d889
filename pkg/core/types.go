package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nikolaydubina/fpdecimal"
)

// Trade is one execution between a buy and a sell order. Buy and Sell are
// snapshots taken just before the trade was applied.
type Trade struct {
	Security string
	Price    int64
	Quantity int64
	Buy      *Order
	Sell     *Order
}

// NewTrade snapshots both orders and assigns them to the buy and sell legs
func NewTrade(security string, price, quantity int64, a, b *Order) Trade {
	buy, sell := a, b
	if a.side == Sell {
		buy, sell = b, a
	}
	return Trade{
		Security: security,
		Price:    price,
		Quantity: quantity,
		Buy:      buy.Snapshot(),
		Sell:     sell.Snapshot(),
	}
}

// TradedValue is price times quantity
func (t Trade) TradedValue() fpdecimal.Decimal {
	return fpdecimal.FromInt(t.Price * t.Quantity)
}

// OrderOf returns the leg of the given side
func (t Trade) OrderOf(side Side) *Order {
	if side == Buy {
		return t.Buy
	}
	return t.Sell
}

// MarshalJSON implements Marshaler interface
func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Security    string `json:"security"`
		Price       int64  `json:"price"`
		Quantity    int64  `json:"quantity"`
		BuyOrderID  int64  `json:"buyOrderId"`
		SellOrderID int64  `json:"sellOrderId"`
	}{
		Security:    t.Security,
		Price:       t.Price,
		Quantity:    t.Quantity,
		BuyOrderID:  t.Buy.ID(),
		SellOrderID: t.Sell.ID(),
	})
}

// Outcome is the closed set of results a matching attempt can produce
type Outcome int

// Matching outcomes
const (
	Approved Outcome = iota
	Executed
	NotEnoughCredit
	NotEnoughPositions
	NotEnoughExecutionQuantity
	IsInactive
	StopLimitNotAllowedInAuction
	MinExecNotAllowedInAuction
)

// String returns outcome as string
func (o Outcome) String() string {
	switch o {
	case Approved:
		return "APPROVED"
	case Executed:
		return "EXECUTED"
	case NotEnoughCredit:
		return "NOT_ENOUGH_CREDIT"
	case NotEnoughPositions:
		return "NOT_ENOUGH_POSITIONS"
	case NotEnoughExecutionQuantity:
		return "NOT_ENOUGH_EXECUTION_QUANTITY"
	case IsInactive:
		return "IS_INACTIVE"
	case StopLimitNotAllowedInAuction:
		return "STOP_LIMIT_NOT_ALLOWED_IN_AUCTION"
	case MinExecNotAllowedInAuction:
		return "MIN_EXEC_NOT_ALLOWED_IN_AUCTION"
	default:
		return "UNKNOWN"
	}
}

// Succeeded reports whether the request went through: the order executed
// or was parked waiting for its stop price
func (o Outcome) Succeeded() bool {
	return o == Executed || o == IsInactive
}

// MatchResult is the outcome of one matching attempt
type MatchResult struct {
	Outcome   Outcome
	Remainder *Order
	Trades    []Trade
	// OpeningPrice and TradableQuantity are only set in auction mode
	OpeningPrice     int64
	TradableQuantity int64
}

// NewMatchResult creates a result without trades
func NewMatchResult(outcome Outcome, remainder *Order) *MatchResult {
	return &MatchResult{Outcome: outcome, Remainder: remainder}
}

// ExecutedResult creates a successful result
func ExecutedResult(remainder *Order, trades []Trade) *MatchResult {
	return &MatchResult{Outcome: Executed, Remainder: remainder, Trades: trades}
}

// AuctionResult creates a successful result carrying auction pricing figures
func AuctionResult(remainder *Order, trades []Trade, openingPrice, tradableQuantity int64) *MatchResult {
	return &MatchResult{
		Outcome:          Executed,
		Remainder:        remainder,
		Trades:           trades,
		OpeningPrice:     openingPrice,
		TradableQuantity: tradableQuantity,
	}
}

// LastTrade returns the most recent trade of the result
func (r *MatchResult) LastTrade() (Trade, bool) {
	if len(r.Trades) == 0 {
		return Trade{}, false
	}
	return r.Trades[len(r.Trades)-1], true
}

// MatchingState selects the matching protocol of a security
type MatchingState int

// Matching states
const (
	Continuous MatchingState = iota
	Auction
)

// String returns state as string
func (s MatchingState) String() string {
	switch s {
	case Continuous:
		return "CONTINUOUS"
	case Auction:
		return "AUCTION"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s MatchingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *MatchingState) UnmarshalText(text []byte) error {
	state, err := ParseMatchingState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseMatchingState parses CONTINUOUS or AUCTION, case-insensitively
func ParseMatchingState(s string) (MatchingState, error) {
	switch strings.ToUpper(s) {
	case "CONTINUOUS":
		return Continuous, nil
	case "AUCTION":
		return Auction, nil
	default:
		return Continuous, fmt.Errorf("%w: matching state %q", ErrInvalidArgument, s)
	}
}
