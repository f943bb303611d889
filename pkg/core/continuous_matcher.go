package core

import (
	"context"

	"github.com/erain9/tinyme/pkg/otel"
)

// ContinuousMatcher matches an incoming order against the opposite side
// as soon as it arrives. Trades happen at the resting order's price.
type ContinuousMatcher struct {
	controls *ControlList
}

// NewContinuousMatcher creates a matcher running controls
func NewContinuousMatcher(controls *ControlList) *ContinuousMatcher {
	return &ContinuousMatcher{controls: controls}
}

// Execute matches order and leaves any remainder in the book. A rejected
// order leaves the book and every account exactly as they were.
func (m *ContinuousMatcher) Execute(ctx context.Context, order *Order) *MatchResult {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanMatchOrder, orderAttributes(order)...)
	result := m.execute(order)
	endMatchSpan(ctx, span, Continuous.String(), result)
	return result
}

func (m *ContinuousMatcher) execute(order *Order) *MatchResult {
	if outcome := m.controls.CanStartExecution(order); outcome != Approved {
		return NewMatchResult(outcome, order)
	}
	m.controls.ExecutionStarted(order)

	result := m.match(order)
	if result.Outcome != Executed {
		return result
	}
	if outcome := m.controls.CanAcceptMatching(order, result); outcome != Approved {
		rollbackTrades(m.controls, order, result.Trades)
		return NewMatchResult(outcome, order)
	}

	security := order.Security()
	if order.TotalQuantity() > 0 {
		security.OrderBook().Enqueue(order)
	}
	m.controls.MatchingAccepted(order, result)
	if last, ok := result.LastTrade(); ok {
		security.setLastTradePrice(last.Price)
	}
	return result
}

func (m *ContinuousMatcher) match(order *Order) *MatchResult {
	security := order.Security()
	book := security.OrderBook()
	var trades []Trade

	for order.TotalQuantity() > 0 {
		resting := book.MatchWithFirst(order)
		if resting == nil {
			break
		}

		quantity := min(order.Quantity(), resting.Quantity())
		trade := NewTrade(security.ISIN(), resting.Price(), quantity, order, resting)
		if outcome := m.controls.CanTrade(order, trade); outcome != Approved {
			rollbackTrades(m.controls, order, trades)
			return NewMatchResult(outcome, order)
		}
		m.controls.TradeAccepted(order, resting, trade)
		trades = append(trades, trade)
	}
	return ExecutedResult(order, trades)
}
