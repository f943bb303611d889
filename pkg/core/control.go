package core

// Control is one policy plugged into the matching pipeline. Gates return
// Approved to let matching continue; the remaining hooks are side effects.
type Control interface {
	// CanStartExecution gates an order before any matching happens
	CanStartExecution(order *Order) Outcome
	// ExecutionStarted runs once the start gates passed
	ExecutionStarted(order *Order)
	// CanTrade gates each prospective trade of the incoming order
	CanTrade(incoming *Order, trade Trade) Outcome
	// TradeAccepted applies the effects of a committed trade
	TradeAccepted(incoming, resting *Order, trade Trade)
	// CanAcceptMatching gates the result of a whole sweep
	CanAcceptMatching(order *Order, result *MatchResult) Outcome
	// MatchingAccepted finalizes an accepted sweep. order is nil for
	// auction reopening, which clears many orders at once.
	MatchingAccepted(order *Order, result *MatchResult)
	// RollbackTrades undoes the effects of TradeAccepted for trades
	RollbackTrades(incoming *Order, trades []Trade)
}

// BaseControl implements every hook as a no-op. Embed it and override the
// hooks a control cares about.
type BaseControl struct{}

func (BaseControl) CanStartExecution(*Order) Outcome               { return Approved }
func (BaseControl) ExecutionStarted(*Order)                        {}
func (BaseControl) CanTrade(*Order, Trade) Outcome                 { return Approved }
func (BaseControl) TradeAccepted(*Order, *Order, Trade)            {}
func (BaseControl) CanAcceptMatching(*Order, *MatchResult) Outcome { return Approved }
func (BaseControl) MatchingAccepted(*Order, *MatchResult)          {}
func (BaseControl) RollbackTrades(*Order, []Trade)                 {}

// ControlList runs controls in registration order. Gates stop at the
// first control that does not approve.
type ControlList struct {
	controls []Control
}

// NewControlList creates a pipeline from controls, in order
func NewControlList(controls ...Control) *ControlList {
	return &ControlList{controls: controls}
}

// DefaultControls returns the standard pipeline. The stop-limit control
// comes last because parking an order is a side effect of its gate.
func DefaultControls() *ControlList {
	return NewControlList(
		PositionControl{},
		CreditControl{},
		MinimumExecutionQuantityControl{},
		StopLimitControl{},
	)
}

// Controls returns the registered controls
func (l *ControlList) Controls() []Control {
	return l.controls
}

func (l *ControlList) CanStartExecution(order *Order) Outcome {
	for _, c := range l.controls {
		if outcome := c.CanStartExecution(order); outcome != Approved {
			return outcome
		}
	}
	return Approved
}

func (l *ControlList) ExecutionStarted(order *Order) {
	for _, c := range l.controls {
		c.ExecutionStarted(order)
	}
}

func (l *ControlList) CanTrade(incoming *Order, trade Trade) Outcome {
	for _, c := range l.controls {
		if outcome := c.CanTrade(incoming, trade); outcome != Approved {
			return outcome
		}
	}
	return Approved
}

func (l *ControlList) TradeAccepted(incoming, resting *Order, trade Trade) {
	for _, c := range l.controls {
		c.TradeAccepted(incoming, resting, trade)
	}
}

func (l *ControlList) CanAcceptMatching(order *Order, result *MatchResult) Outcome {
	for _, c := range l.controls {
		if outcome := c.CanAcceptMatching(order, result); outcome != Approved {
			return outcome
		}
	}
	return Approved
}

func (l *ControlList) MatchingAccepted(order *Order, result *MatchResult) {
	for _, c := range l.controls {
		c.MatchingAccepted(order, result)
	}
}

// RollbackTrades unwinds controls in reverse registration order
func (l *ControlList) RollbackTrades(incoming *Order, trades []Trade) {
	for i := len(l.controls) - 1; i >= 0; i-- {
		l.controls[i].RollbackTrades(incoming, trades)
	}
}
