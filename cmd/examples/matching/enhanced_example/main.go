package main

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

const isin = "XYZ"

// A walkthrough of continuous matching: price-time priority, iceberg
// replenishment, minimum execution quantity and in-place updates
func main() {
	ctx := context.Background()
	repo := memory.NewRepository()
	security := core.NewSecurity(isin)
	repo.AddSecurity(security)
	buyer := core.NewBroker(1, "buyer", fpdecimal.FromInt(100_000))
	seller := core.NewBroker(2, "seller", fpdecimal.FromInt(0))
	repo.AddBroker(buyer)
	repo.AddBroker(seller)
	holderB := core.NewShareholder(1, "holder-b")
	holderS := core.NewShareholder(2, "holder-s")
	holderS.SetPosition(isin, 100)
	repo.AddShareholder(holderB)
	repo.AddShareholder(holderS)

	fmt.Println("===== TINYME CONTINUOUS MATCHING DEMONSTRATION =====")
	fmt.Println()

	fmt.Println("STEP 1: Adding sell orders to the order book")
	fmt.Println("------------------------------------------")
	submit(ctx, repo, security, request(1, core.Sell, 5, 100))
	iceberg := request(2, core.Sell, 20, 105)
	iceberg.PeakSize = 4
	submit(ctx, repo, security, iceberg)
	submit(ctx, repo, security, request(3, core.Sell, 7, 110))
	printBook(security)

	fmt.Println("STEP 2: A buy order sweeping two price levels")
	fmt.Println("------------------------------------------")
	submit(ctx, repo, security, request(4, core.Buy, 12, 105))
	printBook(security)

	fmt.Println("STEP 3: Minimum execution quantity that cannot be met")
	fmt.Println("------------------------------------------")
	meq := request(5, core.Buy, 50, 110)
	meq.MinimumExecutionQuantity = 40
	submit(ctx, repo, security, meq)
	printBook(security)

	fmt.Println("STEP 4: Updating a resting order")
	fmt.Println("------------------------------------------")
	update := request(3, core.Sell, 7, 104)
	update.Type = core.UpdateOrderEntry
	if res, err := security.UpdateOrder(ctx, update); err != nil {
		fmt.Printf("Update rejected: %v\n", err)
	} else {
		fmt.Printf("Order 3 repriced to 104: %s\n", res.Outcome)
	}
	printBook(security)

	fmt.Println("Summary:")
	fmt.Printf("- Last trade price: %d\n", security.LastTradePrice())
	fmt.Printf("- Buyer credit: %s, seller credit: %s\n", buyer.Credit(), seller.Credit())
	fmt.Printf("- Positions: holder-b=%d holder-s=%d\n", holderB.Position(isin), holderS.Position(isin))
}

func request(id int64, side core.Side, quantity, price int64) core.EnterOrderRequest {
	broker, holder := int64(1), int64(1)
	if side == core.Sell {
		broker, holder = 2, 2
	}
	return core.EnterOrderRequest{
		RequestID:     id,
		Type:          core.NewOrderEntry,
		SecurityISIN:  isin,
		OrderID:       id,
		EntryTime:     time.Now(),
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		BrokerID:      broker,
		ShareholderID: holder,
	}
}

func submit(ctx context.Context, repo *memory.Repository, security *core.Security, req core.EnterOrderRequest) {
	if err := core.ValidateEnterOrder(req, repo); err != nil {
		fmt.Printf("Order %d invalid: %v\n", req.OrderID, err)
		return
	}
	res := security.NewOrder(ctx, req, repo.FindBroker(req.BrokerID), repo.FindShareholder(req.ShareholderID))
	if msg, rejected := core.RejectionMessage(res.Outcome); rejected {
		fmt.Printf("Order %d rejected: %s\n", req.OrderID, msg)
		return
	}
	fmt.Printf("Order %d %s %d@%d: %s\n", req.OrderID, req.Side, req.Quantity, req.Price, res.Outcome)
	for _, t := range res.Trades {
		fmt.Printf("  trade %d@%d buy=%d sell=%d\n", t.Quantity, t.Price, t.Buy.ID(), t.Sell.ID())
	}
}

func printBook(security *core.Security) {
	fmt.Println("\nCurrent order book status:")
	for _, side := range []core.Side{core.Sell, core.Buy} {
		for _, o := range security.OrderBook().Orders(side) {
			fmt.Printf("  %s\n", o)
		}
	}
	fmt.Println()
}
