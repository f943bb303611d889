package main

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

const isin = "ABC"

func main() {
	ctx := context.Background()

	// Reference data lives in the in-memory repository
	repo := memory.NewRepository()
	security := core.NewSecurity(isin, core.WithTickSize(10), core.WithLotSize(5), core.WithMatchingState(core.Auction))
	repo.AddSecurity(security)
	buyer := core.NewBroker(1, "buyer", fpdecimal.FromInt(1_000_000))
	seller := core.NewBroker(2, "seller", fpdecimal.FromInt(1_000_000))
	repo.AddBroker(buyer)
	repo.AddBroker(seller)
	alice := core.NewShareholder(1, "alice")
	bob := core.NewShareholder(2, "bob")
	bob.SetPosition(isin, 500)
	repo.AddShareholder(alice)
	repo.AddShareholder(bob)

	enter := func(id int64, side core.Side, quantity, price, stop int64) *core.MatchResult {
		broker, holder := buyer, alice
		if side == core.Sell {
			broker, holder = seller, bob
		}
		req := core.EnterOrderRequest{
			RequestID:     id,
			Type:          core.NewOrderEntry,
			SecurityISIN:  isin,
			OrderID:       id,
			EntryTime:     time.Now(),
			Side:          side,
			Quantity:      quantity,
			Price:         price,
			BrokerID:      broker.ID(),
			ShareholderID: holder.ID(),
			StopPrice:     stop,
		}
		if err := core.ValidateEnterOrder(req, repo); err != nil {
			panic(err)
		}
		return security.NewOrder(ctx, req, broker, holder)
	}

	// Collect orders during the auction
	fmt.Printf("Security %s opens in %s state\n", isin, security.State())
	for _, o := range []struct {
		id           int64
		side         core.Side
		quantity, px int64
	}{
		{1, core.Sell, 100, 1000},
		{2, core.Sell, 50, 1020},
		{3, core.Buy, 80, 1030},
		{4, core.Buy, 40, 990},
	} {
		res := enter(o.id, o.side, o.quantity, o.px, 0)
		fmt.Printf("Order %d %s %d@%d: %s, opening price %d (tradable %d)\n",
			o.id, o.side, o.quantity, o.px, res.Outcome, res.OpeningPrice, res.TradableQuantity)
	}

	// Reopening executes every order crossing the opening price
	res := security.ChangeMatchingState(ctx, core.Continuous)
	fmt.Printf("\nReopened in %s state with %d trade(s)\n", security.State(), len(res.Trades))
	printTrades(res.Trades)

	// A buy stop above the last trade price waits in the inactive book
	res = enter(5, core.Buy, 20, 1040, 1010)
	fmt.Printf("\nStop order 5: %s, inactive book holds %d order(s)\n",
		res.Outcome, security.InactiveOrderBook().Len(core.Buy))

	// Trading at 1020 triggers it
	res = enter(6, core.Buy, 30, 1020, 0)
	fmt.Printf("Order 6 BUY 30@1020: %s\n", res.Outcome)
	printTrades(res.Trades)
	for _, a := range security.ActivateTriggered(ctx) {
		fmt.Printf("Activated order %d: %s\n", a.Order.ID(), a.Result.Outcome)
		printTrades(a.Result.Trades)
	}

	fmt.Println("\nSummary:")
	fmt.Printf("- Last trade price: %d\n", security.LastTradePrice())
	fmt.Printf("- Buyer credit: %s\n", buyer.Credit())
	fmt.Printf("- Seller credit: %s\n", seller.Credit())
	fmt.Printf("- Alice holds %d, Bob holds %d\n", alice.Position(isin), bob.Position(isin))
	for _, side := range []core.Side{core.Buy, core.Sell} {
		for _, o := range security.OrderBook().Orders(side) {
			fmt.Printf("- Resting %s order %d: %d@%d\n", side, o.ID(), o.Quantity(), o.Price())
		}
	}
}

func printTrades(trades []core.Trade) {
	for _, t := range trades {
		fmt.Printf("  trade %d@%d buy=%d sell=%d\n", t.Quantity, t.Price, t.Buy.ID(), t.Sell.ID())
	}
}
