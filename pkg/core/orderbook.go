package core

import (
	"slices"

	"github.com/google/btree"
)

const btreeDegree = 32

// bookEntry is one order resting in a queue. key is the price for the
// order book and the stop price for the inactive book; seq breaks ties
// in arrival order.
type bookEntry struct {
	key   int64
	seq   uint64
	order *Order
}

func descendingKey(a, b bookEntry) bool {
	if a.key != b.key {
		return a.key > b.key
	}
	return a.seq < b.seq
}

func ascendingKey(a, b bookEntry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

// orderQueue is a single side of a book: a B-tree in priority order plus
// an id index for removal.
type orderQueue struct {
	tree  *btree.BTreeG[bookEntry]
	index map[int64]bookEntry
}

func newOrderQueue(less btree.LessFunc[bookEntry]) *orderQueue {
	return &orderQueue{
		tree:  btree.NewG[bookEntry](btreeDegree, less),
		index: make(map[int64]bookEntry),
	}
}

func (q *orderQueue) insert(key int64, order *Order) {
	entry := bookEntry{key: key, seq: order.seq, order: order}
	q.tree.ReplaceOrInsert(entry)
	q.index[order.id] = entry
}

func (q *orderQueue) find(orderID int64) *Order {
	entry, ok := q.index[orderID]
	if !ok {
		return nil
	}
	return entry.order
}

func (q *orderQueue) remove(orderID int64) bool {
	entry, ok := q.index[orderID]
	if !ok {
		return false
	}
	delete(q.index, orderID)
	q.tree.Delete(entry)
	return true
}

func (q *orderQueue) first() *Order {
	entry, ok := q.tree.Min()
	if !ok {
		return nil
	}
	return entry.order
}

func (q *orderQueue) removeFirst() *Order {
	entry, ok := q.tree.DeleteMin()
	if !ok {
		return nil
	}
	delete(q.index, entry.order.id)
	return entry.order
}

func (q *orderQueue) walk(fn func(*Order) bool) {
	q.tree.Ascend(func(entry bookEntry) bool {
		return fn(entry.order)
	})
}

func (q *orderQueue) orders() []*Order {
	out := make([]*Order, 0, q.tree.Len())
	q.walk(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// OrderBook keeps the resting orders of one security in price-time
// priority: buys by price descending, sells by price ascending, FIFO
// within a price level.
type OrderBook struct {
	buys    *orderQueue
	sells   *orderQueue
	nextSeq uint64
}

// NewOrderBook creates an empty order book
func NewOrderBook() *OrderBook {
	return &OrderBook{
		buys:  newOrderQueue(descendingKey),
		sells: newOrderQueue(ascendingKey),
	}
}

func (b *OrderBook) queue(side Side) *orderQueue {
	if side == Buy {
		return b.buys
	}
	return b.sells
}

// Enqueue inserts the order behind every order of equal or better price
func (b *OrderBook) Enqueue(order *Order) {
	b.nextSeq++
	order.seq = b.nextSeq
	order.markQueued()
	b.queue(order.side).insert(order.price, order)
}

// FindByOrderID returns the resting order with the given id or nil
func (b *OrderBook) FindByOrderID(side Side, orderID int64) *Order {
	return b.queue(side).find(orderID)
}

// RemoveByOrderID removes the order and reports whether it was present
func (b *OrderBook) RemoveByOrderID(side Side, orderID int64) bool {
	return b.queue(side).remove(orderID)
}

// MatchWithFirst returns the head of the opposite side if incoming
// accepts its price
func (b *OrderBook) MatchWithFirst(incoming *Order) *Order {
	head := b.queue(incoming.side.Opposite()).first()
	if head == nil || !incoming.Matches(head.price) {
		return nil
	}
	return head
}

// RestoreOrder puts the order captured in snap back where it stood when
// the snapshot was taken, with the quantities it had then
func (b *OrderBook) RestoreOrder(snap *Order) {
	live := snap.origin()
	q := b.queue(live.side)
	q.remove(live.id)
	live.restore(snap)
	live.status = StatusQueued
	q.insert(live.price, live)
}

// HasOrderOfSide reports whether the side has any resting order
func (b *OrderBook) HasOrderOfSide(side Side) bool {
	return b.queue(side).tree.Len() > 0
}

// First returns the head of the side or nil
func (b *OrderBook) First(side Side) *Order {
	return b.queue(side).first()
}

// RemoveFirst pops the head of the side
func (b *OrderBook) RemoveFirst(side Side) *Order {
	return b.queue(side).removeFirst()
}

// Len returns the number of resting orders on a side
func (b *OrderBook) Len(side Side) int {
	return b.queue(side).tree.Len()
}

// Orders returns the side's orders in priority order
func (b *OrderBook) Orders(side Side) []*Order {
	return b.queue(side).orders()
}

// TotalSellQuantityByShareholder sums the remaining quantity the
// shareholder already offers for sale
func (b *OrderBook) TotalSellQuantityByShareholder(shareholder *Shareholder) int64 {
	var total int64
	b.sells.walk(func(o *Order) bool {
		if o.shareholder == shareholder {
			total += o.TotalQuantity()
		}
		return true
	})
	return total
}

// UniquePrices returns every distinct price on either side, ascending
func (b *OrderBook) UniquePrices() []int64 {
	seen := make(map[int64]struct{})
	prices := make([]int64, 0)
	collect := func(o *Order) bool {
		if _, ok := seen[o.price]; !ok {
			seen[o.price] = struct{}{}
			prices = append(prices, o.price)
		}
		return true
	}
	b.buys.walk(collect)
	b.sells.walk(collect)
	slices.Sort(prices)
	return prices
}

// TradableQuantity sums the remaining quantity of the side's orders that
// accept price, scanning from the head until the first one that does not
func (b *OrderBook) TradableQuantity(side Side, price int64) int64 {
	var total int64
	b.queue(side).walk(func(o *Order) bool {
		if !o.Matches(price) {
			return false
		}
		total += o.TotalQuantity()
		return true
	})
	return total
}
