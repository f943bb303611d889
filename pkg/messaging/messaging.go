package messaging

import (
	"context"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/google/uuid"
)

// EventPublisher delivers engine events to the outside world
// This keeps pkg/server independent of the transport (Kafka, NATS, websockets)
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// EventType names the kind of an Event
type EventType string

// Event types
const (
	EventOrderAccepted        EventType = "ORDER_ACCEPTED"
	EventOrderUpdated         EventType = "ORDER_UPDATED"
	EventOrderRejected        EventType = "ORDER_REJECTED"
	EventOrderExecuted        EventType = "ORDER_EXECUTED"
	EventOrderActivated       EventType = "ORDER_ACTIVATED"
	EventOrderDeleted         EventType = "ORDER_DELETED"
	EventOpeningPrice         EventType = "OPENING_PRICE"
	EventTrade                EventType = "TRADE"
	EventSecurityStateChanged EventType = "SECURITY_STATE_CHANGED"
)

// Event is the message structure published for every observable change
type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	Time             time.Time `json:"time"`
	SecurityISIN     string    `json:"securityIsin,omitempty"`
	RequestID        int64     `json:"requestId,omitempty"`
	OrderID          int64     `json:"orderId,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
	Trades           []Trade   `json:"trades,omitempty"`
	OpeningPrice     int64     `json:"openingPrice,omitempty"`
	TradableQuantity int64     `json:"tradableQuantity,omitempty"`
	State            string    `json:"state,omitempty"`
}

// Trade represents a single trade execution
type Trade struct {
	SecurityISIN string `json:"securityIsin"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	BuyOrderID   int64  `json:"buyId"`
	SellOrderID  int64  `json:"sellId"`
}

// NewEvent stamps a fresh event of the given type
func NewEvent(eventType EventType, isin string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		Time:         time.Now().UTC(),
		SecurityISIN: isin,
	}
}

// TradeFromCore converts an engine trade
func TradeFromCore(t core.Trade) Trade {
	return Trade{
		SecurityISIN: t.Security,
		Price:        t.Price,
		Quantity:     t.Quantity,
		BuyOrderID:   t.Buy.ID(),
		SellOrderID:  t.Sell.ID(),
	}
}

// TradesFromCore converts engine trades
func TradesFromCore(trades []core.Trade) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeFromCore(t))
	}
	return out
}

func orderEvent(eventType EventType, isin string, requestID, orderID int64) *Event {
	e := NewEvent(eventType, isin)
	e.RequestID = requestID
	e.OrderID = orderID
	return e
}

// OrderAccepted reports a new order that passed every control
func OrderAccepted(isin string, requestID, orderID int64) *Event {
	return orderEvent(EventOrderAccepted, isin, requestID, orderID)
}

// OrderUpdated reports a successful update
func OrderUpdated(isin string, requestID, orderID int64) *Event {
	return orderEvent(EventOrderUpdated, isin, requestID, orderID)
}

// OrderRejected reports a refused request with its reasons
func OrderRejected(isin string, requestID, orderID int64, reasons []string) *Event {
	e := orderEvent(EventOrderRejected, isin, requestID, orderID)
	e.Errors = reasons
	return e
}

// OrderExecuted reports the trades an order took part in
func OrderExecuted(isin string, requestID, orderID int64, trades []core.Trade) *Event {
	e := orderEvent(EventOrderExecuted, isin, requestID, orderID)
	e.Trades = TradesFromCore(trades)
	return e
}

// OrderActivated reports a stop-limit order leaving the inactive book
func OrderActivated(isin string, requestID, orderID int64) *Event {
	return orderEvent(EventOrderActivated, isin, requestID, orderID)
}

// OrderDeleted reports a cancelled order
func OrderDeleted(isin string, requestID, orderID int64) *Event {
	return orderEvent(EventOrderDeleted, isin, requestID, orderID)
}

// OpeningPrice reports the indicative auction price after a book change
func OpeningPrice(isin string, openingPrice, tradableQuantity int64) *Event {
	e := NewEvent(EventOpeningPrice, isin)
	e.OpeningPrice = openingPrice
	e.TradableQuantity = tradableQuantity
	return e
}

// TradeEvent reports one auction trade
func TradeEvent(t core.Trade) *Event {
	e := NewEvent(EventTrade, t.Security)
	e.Trades = []Trade{TradeFromCore(t)}
	return e
}

// SecurityStateChanged reports the new matching state of a security
func SecurityStateChanged(isin string, state core.MatchingState) *Event {
	e := NewEvent(EventSecurityStateChanged, isin)
	e.State = state.String()
	return e
}
