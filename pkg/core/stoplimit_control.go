package core

// StopLimitControl keeps untriggered stop-limit orders out of matching.
// They are refused during an auction and parked in the inactive book
// otherwise.
type StopLimitControl struct {
	BaseControl
}

func (StopLimitControl) CanStartExecution(order *Order) Outcome {
	if !order.IsStopLimit() {
		return Approved
	}
	security := order.Security()
	if security.State() == Auction {
		if order.Status() == StatusNew || order.Status() == StatusInactive {
			return StopLimitNotAllowedInAuction
		}
		return Approved
	}
	if order.IsActive(security.LastTradePrice()) {
		order.trigger()
		return Approved
	}
	if order.Side() == Buy {
		if !order.Broker().HasEnoughCredit(order.Value()) {
			return NotEnoughCredit
		}
		order.Broker().DecreaseCreditBy(order.Value())
	}
	security.InactiveOrderBook().Enqueue(order)
	return IsInactive
}
