package core

// InactiveOrderBook parks stop-limit orders until their stop price is
// crossed. Buys trigger lowest stop first, sells highest stop first;
// equal stop prices keep insertion order.
type InactiveOrderBook struct {
	buys    *orderQueue
	sells   *orderQueue
	nextSeq uint64
}

// NewInactiveOrderBook creates an empty inactive book
func NewInactiveOrderBook() *InactiveOrderBook {
	return &InactiveOrderBook{
		buys:  newOrderQueue(ascendingKey),
		sells: newOrderQueue(descendingKey),
	}
}

func (b *InactiveOrderBook) queue(side Side) *orderQueue {
	if side == Buy {
		return b.buys
	}
	return b.sells
}

// Enqueue parks the order and marks it inactive
func (b *InactiveOrderBook) Enqueue(order *Order) {
	b.nextSeq++
	order.seq = b.nextSeq
	order.markInactive()
	b.queue(order.side).insert(order.stopPrice, order)
}

// Restore puts a parked order back at the position recorded in snap
func (b *InactiveOrderBook) Restore(snap *Order) {
	live := snap.origin()
	q := b.queue(live.side)
	q.remove(live.id)
	live.restore(snap)
	live.markInactive()
	q.insert(live.stopPrice, live)
}

// FindByOrderID returns the parked order with the given id or nil
func (b *InactiveOrderBook) FindByOrderID(side Side, orderID int64) *Order {
	return b.queue(side).find(orderID)
}

// RemoveByOrderID removes the order and reports whether it was present
func (b *InactiveOrderBook) RemoveByOrderID(side Side, orderID int64) bool {
	return b.queue(side).remove(orderID)
}

// IsFirstActive reports whether the head of side triggers at lastTradePrice
func (b *InactiveOrderBook) IsFirstActive(side Side, lastTradePrice int64) bool {
	head := b.queue(side).first()
	return head != nil && head.IsActive(lastTradePrice)
}

// First returns the head of the side or nil
func (b *InactiveOrderBook) First(side Side) *Order {
	return b.queue(side).first()
}

// RemoveFirst pops the head of the side
func (b *InactiveOrderBook) RemoveFirst(side Side) *Order {
	return b.queue(side).removeFirst()
}

// Len returns the number of parked orders on a side
func (b *InactiveOrderBook) Len(side Side) int {
	return b.queue(side).tree.Len()
}

// Orders returns the side's parked orders in trigger order
func (b *InactiveOrderBook) Orders(side Side) []*Order {
	return b.queue(side).orders()
}
