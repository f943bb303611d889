package core

import (
	"context"

	"github.com/erain9/tinyme/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Security is one tradable instrument: its books, its matching state and
// the two matchers that share a single control pipeline
type Security struct {
	isin           string
	tickSize       int64
	lotSize        int64
	lastTradePrice int64
	state          MatchingState

	orderBook    *OrderBook
	inactiveBook *InactiveOrderBook

	continuous *ContinuousMatcher
	auction    *AuctionMatcher
}

// SecurityOption configures a Security
type SecurityOption func(*Security)

// WithTickSize sets the price increment. Non-positive sizes are ignored.
func WithTickSize(size int64) SecurityOption {
	return func(s *Security) {
		if size > 0 {
			s.tickSize = size
		}
	}
}

// WithLotSize sets the quantity increment. Non-positive sizes are ignored.
func WithLotSize(size int64) SecurityOption {
	return func(s *Security) {
		if size > 0 {
			s.lotSize = size
		}
	}
}

// WithLastTradePrice seeds the last trade price
func WithLastTradePrice(price int64) SecurityOption {
	return func(s *Security) {
		s.lastTradePrice = price
	}
}

// WithMatchingState sets the initial matching state
func WithMatchingState(state MatchingState) SecurityOption {
	return func(s *Security) {
		s.state = state
	}
}

// WithControls replaces the default control pipeline
func WithControls(controls *ControlList) SecurityOption {
	return func(s *Security) {
		s.continuous = NewContinuousMatcher(controls)
		s.auction = NewAuctionMatcher(controls)
	}
}

// NewSecurity creates a security in continuous trading with tick and lot
// size 1 and the default controls
func NewSecurity(isin string, opts ...SecurityOption) *Security {
	controls := DefaultControls()
	s := &Security{
		isin:         isin,
		tickSize:     1,
		lotSize:      1,
		state:        Continuous,
		orderBook:    NewOrderBook(),
		inactiveBook: NewInactiveOrderBook(),
		continuous:   NewContinuousMatcher(controls),
		auction:      NewAuctionMatcher(controls),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ISIN returns the security identifier
func (s *Security) ISIN() string { return s.isin }

// TickSize returns the price increment
func (s *Security) TickSize() int64 { return s.tickSize }

// LotSize returns the quantity increment
func (s *Security) LotSize() int64 { return s.lotSize }

// LastTradePrice returns the price of the latest trade, NoTradePrice if none
func (s *Security) LastTradePrice() int64 { return s.lastTradePrice }

// State returns the matching state
func (s *Security) State() MatchingState { return s.state }

// OrderBook returns the book of resting orders
func (s *Security) OrderBook() *OrderBook { return s.orderBook }

// InactiveOrderBook returns the book of parked stop-limit orders
func (s *Security) InactiveOrderBook() *InactiveOrderBook { return s.inactiveBook }

// AuctionMatcher returns the auction matcher of the security
func (s *Security) AuctionMatcher() *AuctionMatcher { return s.auction }

// Matcher returns the matcher of the current state
func (s *Security) Matcher() Matcher {
	if s.state == Auction {
		return s.auction
	}
	return s.continuous
}

func (s *Security) setLastTradePrice(price int64) {
	s.lastTradePrice = price
}

// NewOrder builds the order described by req and runs it through the
// matcher of the current state. A peak size makes an iceberg, a stop price
// a stop-limit order.
func (s *Security) NewOrder(ctx context.Context, req EnterOrderRequest, broker *Broker, shareholder *Shareholder) *MatchResult {
	var order *Order
	switch {
	case req.PeakSize != 0 && req.StopPrice == 0:
		order = NewIcebergOrder(req.OrderID, s, req.Side, req.Quantity, req.Price, broker, shareholder,
			req.EntryTime, req.PeakSize, req.MinimumExecutionQuantity)
	case req.PeakSize == 0 && req.StopPrice != 0:
		order = NewStopLimitOrder(req.OrderID, s, req.Side, req.Quantity, req.Price, broker, shareholder,
			req.EntryTime, req.StopPrice)
	default:
		order = NewOrder(req.OrderID, s, req.Side, req.Quantity, req.Price, broker, shareholder,
			req.EntryTime, req.MinimumExecutionQuantity)
	}
	return s.Matcher().Execute(ctx, order)
}

// FindOrder looks the order up in the order book, then in the inactive book
func (s *Security) FindOrder(side Side, orderID int64) *Order {
	if order := s.orderBook.FindByOrderID(side, orderID); order != nil {
		return order
	}
	return s.inactiveBook.FindByOrderID(side, orderID)
}

func (s *Security) removeOrder(side Side, orderID int64) {
	if s.orderBook.RemoveByOrderID(side, orderID) {
		return
	}
	s.inactiveBook.RemoveByOrderID(side, orderID)
}

// UpdateOrder applies req to a resting or parked order. An update that
// keeps priority changes the order in place; otherwise the order is
// matched again and, if that fails, put back exactly as it was.
func (s *Security) UpdateOrder(ctx context.Context, req EnterOrderRequest) (*MatchResult, error) {
	order := s.FindOrder(req.Side, req.OrderID)
	if err := validateUpdate(req, order); err != nil {
		return nil, err
	}

	wasInactive := order.Status() == StatusInactive
	if order.Side() == Buy {
		order.Broker().IncreaseCreditBy(order.Value())
	}
	original := order.Snapshot()
	// the inactive book is keyed by stop price, so a new stop re-parks the order
	stopMoved := wasInactive && req.StopPrice != order.StopPrice()
	priorityLost := stopMoved || order.IsPriorityLostAfterUpdate(req)
	order.UpdateFromRequest(req)

	if !priorityLost {
		if order.Side() == Buy {
			order.Broker().DecreaseCreditBy(order.Value())
		}
		return ExecutedResult(nil, nil), nil
	}

	s.removeOrder(order.Side(), order.ID())
	if wasInactive {
		order.markNew()
	} else {
		order.markUpdating()
	}

	result := s.Matcher().Execute(ctx, order)
	if !result.Outcome.Succeeded() {
		if wasInactive {
			s.inactiveBook.Restore(original)
		} else {
			s.orderBook.RestoreOrder(original)
		}
		if order.Side() == Buy {
			order.Broker().DecreaseCreditBy(original.Value())
		}
	}
	return result, nil
}

func validateUpdate(req EnterOrderRequest, order *Order) error {
	switch {
	case order == nil:
		return orderNotFound()
	case order.IsIceberg() && req.PeakSize == 0:
		return NewValidationError(MsgInvalidPeakSize)
	case !order.IsIceberg() && req.PeakSize != 0:
		return NewValidationError(MsgCannotSpecifyPeakSizeForNonIceberg)
	case order.MinimumExecutionQuantity() != req.MinimumExecutionQuantity:
		return NewValidationError(MsgCannotChangeMinimumExecution)
	case !order.IsStopLimit() && req.StopPrice > 0:
		return NewValidationError(MsgCannotSpecifyStopPriceForNonStop)
	case order.IsStopLimit() && order.Status() != StatusInactive && req.StopPrice != 0:
		return NewValidationError(MsgCannotSpecifyStopPriceForActive)
	}
	return nil
}

// DeleteOrder removes an order from whichever book holds it and releases
// the credit a buy order reserved. During an auction the result carries
// the new opening price.
func (s *Security) DeleteOrder(ctx context.Context, req DeleteOrderRequest) (*MatchResult, error) {
	order := s.FindOrder(req.Side, req.OrderID)
	if order == nil {
		return nil, orderNotFound()
	}
	if s.state == Auction && order.Status() == StatusInactive {
		return nil, NewValidationError(MsgCannotDeleteInactiveOrderInAuction)
	}

	if order.Side() == Buy {
		order.Broker().IncreaseCreditBy(order.Value())
	}
	s.removeOrder(order.Side(), order.ID())

	if s.state == Auction {
		price := s.auction.CalculateOpeningPrice(s.orderBook, s.lastTradePrice)
		return AuctionResult(order, nil, price, s.auction.TradableQuantityAt(s.orderBook, price)), nil
	}
	return ExecutedResult(order, nil), nil
}

// ChangeMatchingState switches to target. Leaving an auction clears the
// book at the opening price first.
func (s *Security) ChangeMatchingState(ctx context.Context, target MatchingState) *MatchResult {
	result := ExecutedResult(nil, nil)
	if s.state == Auction {
		result = s.auction.Reopen(ctx, s)
	}
	s.state = target
	return result
}

// Activation is one stop-limit order released from the inactive book and
// the result of matching it
type Activation struct {
	Order  *Order
	Result *MatchResult
}

// ActivateTriggered releases every parked order whose stop price has been
// crossed. Sell stops are checked before buy stops, and each activated
// order is matched before the next head is looked at, so trades it makes
// can trigger further orders. Nothing is released before the first trade.
func (s *Security) ActivateTriggered(ctx context.Context) []Activation {
	if s.lastTradePrice == NoTradePrice {
		return nil
	}

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanActivate,
		attribute.String(otel.AttributeSecurity, s.isin),
	)
	defer span.End()

	var activations []Activation
	for order := s.firstActivated(); order != nil; order = s.firstActivated() {
		order.markActive()
		if order.Side() == Buy {
			order.Broker().IncreaseCreditBy(order.Value())
		}
		result := s.Matcher().Execute(ctx, order)
		activations = append(activations, Activation{Order: order, Result: result})
	}

	otel.AddAttributes(span, attribute.Int(otel.AttributeActivatedCount, len(activations)))
	otel.GetMatchingMetrics().RecordActivations(ctx, s.isin, int64(len(activations)))
	return activations
}

func (s *Security) firstActivated() *Order {
	if s.inactiveBook.IsFirstActive(Sell, s.lastTradePrice) {
		return s.inactiveBook.RemoveFirst(Sell)
	}
	if s.inactiveBook.IsFirstActive(Buy, s.lastTradePrice) {
		return s.inactiveBook.RemoveFirst(Buy)
	}
	return nil
}
