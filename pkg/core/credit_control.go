package core

import (
	"github.com/nikolaydubina/fpdecimal"
)

// CreditControl keeps broker credit in step with buy orders. A resting buy
// order has its full value reserved; an incoming buy pays for each trade
// as it happens and reserves whatever remains unfilled.
type CreditControl struct {
	BaseControl
}

// CanStartExecution requires an auction buy to cover its full value up front
func (CreditControl) CanStartExecution(order *Order) Outcome {
	if order.Side() == Sell || order.Security().State() != Auction {
		return Approved
	}
	if !order.Broker().HasEnoughCredit(order.Value()) {
		return NotEnoughCredit
	}
	return Approved
}

// ExecutionStarted reserves the value of an auction buy
func (CreditControl) ExecutionStarted(order *Order) {
	if order.Side() == Buy && order.Security().State() == Auction {
		order.Broker().DecreaseCreditBy(order.Value())
	}
}

// CanTrade requires an incoming buyer to pay for the trade
func (CreditControl) CanTrade(incoming *Order, trade Trade) Outcome {
	if incoming.Side() == Buy && !incoming.Broker().HasEnoughCredit(trade.TradedValue()) {
		return NotEnoughCredit
	}
	return Approved
}

func (CreditControl) TradeAccepted(incoming, resting *Order, trade Trade) {
	trade.Sell.Broker().IncreaseCreditBy(trade.TradedValue())
	buy := incoming
	if buy.Side() != Buy {
		buy = resting
	}
	if buy.Status() == StatusQueued {
		buy.Broker().IncreaseCreditBy(priceImprovement(trade))
		return
	}
	buy.Broker().DecreaseCreditBy(trade.TradedValue())
}

// CanAcceptMatching requires a buyer to cover the unfilled remainder
func (CreditControl) CanAcceptMatching(order *Order, _ *MatchResult) Outcome {
	if order.Side() == Buy && order.TotalQuantity() > 0 && !order.Broker().HasEnoughCredit(order.Value()) {
		return NotEnoughCredit
	}
	return Approved
}

// MatchingAccepted reserves the value of the remainder left in the book
func (CreditControl) MatchingAccepted(order *Order, _ *MatchResult) {
	if order == nil || order.Side() != Buy || order.TotalQuantity() == 0 {
		return
	}
	order.Broker().DecreaseCreditBy(order.Value())
}

func (CreditControl) RollbackTrades(incoming *Order, trades []Trade) {
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		t.Sell.Broker().DecreaseCreditBy(t.TradedValue())
		if incoming.Side() == Buy {
			t.Buy.Broker().IncreaseCreditBy(t.TradedValue())
		} else {
			t.Buy.Broker().DecreaseCreditBy(priceImprovement(t))
		}
	}
}

// priceImprovement is what a resting buyer reserved beyond what the trade cost
func priceImprovement(t Trade) fpdecimal.Decimal {
	return fpdecimal.FromInt((t.Buy.Price() - t.Price) * t.Quantity)
}
