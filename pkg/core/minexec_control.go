package core

// MinimumExecutionQuantityControl enforces the minimum fill a new order
// asked for. Such orders cannot enter an auction.
type MinimumExecutionQuantityControl struct {
	BaseControl
}

func (MinimumExecutionQuantityControl) CanStartExecution(order *Order) Outcome {
	if order.Security().State() != Auction {
		return Approved
	}
	if order.Status() != StatusNew || order.MinimumExecutionQuantity() == 0 {
		return Approved
	}
	return MinExecNotAllowedInAuction
}

func (MinimumExecutionQuantityControl) CanAcceptMatching(order *Order, _ *MatchResult) Outcome {
	if order.Status() == StatusNew && !order.HasEnoughExecutions() {
		return NotEnoughExecutionQuantity
	}
	return Approved
}
