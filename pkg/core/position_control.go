package core

// PositionControl makes sure sellers own what they sell, applies the
// quantity changes of every trade to the book and moves shares from
// seller to buyer once a sweep is accepted.
type PositionControl struct {
	BaseControl
}

// CanStartExecution requires a seller to hold the shares already offered
// plus the shares of this order
func (PositionControl) CanStartExecution(order *Order) Outcome {
	if order.Side() != Sell {
		return Approved
	}
	security := order.Security()
	offered := security.OrderBook().TotalSellQuantityByShareholder(order.Shareholder())
	if !order.Shareholder().HasEnoughPositionsOn(security, offered+order.TotalQuantity()) {
		return NotEnoughPositions
	}
	return Approved
}

func (PositionControl) TradeAccepted(incoming, resting *Order, trade Trade) {
	book := trade.Buy.Security().OrderBook()
	settleQuantity(incoming, trade.Quantity, book)
	settleQuantity(resting, trade.Quantity, book)
}

func (PositionControl) MatchingAccepted(_ *Order, result *MatchResult) {
	for _, t := range result.Trades {
		security := t.Buy.Security()
		t.Buy.Shareholder().IncPosition(security, t.Quantity)
		t.Sell.Shareholder().DecPosition(security, t.Quantity)
	}
}

// settleQuantity applies a fill to order. Resting orders that run out
// leave the book; an iceberg with reserve left goes to the back of its
// price level with a fresh slice.
func settleQuantity(order *Order, quantity int64, book *OrderBook) {
	order.DecreaseQuantity(quantity)
	if order.isIncoming() || order.Quantity() != 0 {
		return
	}
	book.RemoveByOrderID(order.Side(), order.ID())
	if order.IsIceberg() {
		order.Replenish()
		if order.Quantity() > 0 {
			book.Enqueue(order)
		}
	}
}
