package core

import (
	"testing"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
)

const testISIN = "ABC"

var entryTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fixture is a security with one buying and one selling broker/shareholder pair
type fixture struct {
	security   *Security
	buyer      *Broker
	seller     *Broker
	buyHolder  *Shareholder
	sellHolder *Shareholder
}

func newFixture(opts ...SecurityOption) *fixture {
	f := &fixture{
		security:   NewSecurity(testISIN, opts...),
		buyer:      NewBroker(1, "buyer", fpdecimal.FromInt(100_000)),
		seller:     NewBroker(2, "seller", fpdecimal.FromInt(100_000)),
		buyHolder:  NewShareholder(1, "buy-holder"),
		sellHolder: NewShareholder(2, "sell-holder"),
	}
	f.buyHolder.SetPosition(testISIN, 100_000)
	f.sellHolder.SetPosition(testISIN, 100_000)
	return f
}

func (f *fixture) owners(side Side) (*Broker, *Shareholder) {
	if side == Buy {
		return f.buyer, f.buyHolder
	}
	return f.seller, f.sellHolder
}

func (f *fixture) order(id int64, side Side, quantity, price int64) *Order {
	broker, holder := f.owners(side)
	return NewOrder(id, f.security, side, quantity, price, broker, holder, entryTime, 0)
}

func (f *fixture) iceberg(id int64, side Side, quantity, price, peak int64) *Order {
	broker, holder := f.owners(side)
	return NewIcebergOrder(id, f.security, side, quantity, price, broker, holder, entryTime, peak, 0)
}

func (f *fixture) stopLimit(id int64, side Side, quantity, price, stop int64) *Order {
	broker, holder := f.owners(side)
	return NewStopLimitOrder(id, f.security, side, quantity, price, broker, holder, entryTime, stop)
}

// rest puts orders straight into the book without running any control
func (f *fixture) rest(orders ...*Order) {
	for _, o := range orders {
		f.security.OrderBook().Enqueue(o)
	}
}

// standardBook rests four sells and two buys:
//
//	SELL #1 10@100, #2 20@110, #3 30@110, #4 40@120
//	BUY  #5 10@90,  #6 20@80
func (f *fixture) standardBook() {
	f.rest(
		f.order(1, Sell, 10, 100),
		f.order(2, Sell, 20, 110),
		f.order(3, Sell, 30, 110),
		f.order(4, Sell, 40, 120),
		f.order(5, Buy, 10, 90),
		f.order(6, Buy, 20, 80),
	)
}

func (f *fixture) request(id int64, side Side, quantity, price int64) EnterOrderRequest {
	broker, holder := f.owners(side)
	return EnterOrderRequest{
		RequestID:     id,
		Type:          NewOrderEntry,
		SecurityISIN:  testISIN,
		OrderID:       id,
		EntryTime:     entryTime,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		BrokerID:      broker.ID(),
		ShareholderID: holder.ID(),
	}
}

func (f *fixture) updateRequest(id int64, side Side, quantity, price int64) EnterOrderRequest {
	req := f.request(id, side, quantity, price)
	req.Type = UpdateOrderEntry
	return req
}

func assertCredit(t *testing.T, want int64, broker *Broker) {
	t.Helper()
	assert.True(t, fpdecimal.FromInt(want).Equal(broker.Credit()),
		"broker %d credit: want %d, got %s", broker.ID(), want, broker.Credit())
}

func orderIDs(orders []*Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID())
	}
	return ids
}

func tradeQuantities(trades []Trade) []int64 {
	out := make([]int64, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.Quantity)
	}
	return out
}
