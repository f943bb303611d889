package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	redisstore "github.com/erain9/tinyme/pkg/backend/redis"
	"github.com/erain9/tinyme/pkg/core"
	"go.uber.org/zap"
)

const (
	redisAddr = "localhost:6379"
	redisDB   = 0
	prefix    = "tinyme-example"
)

const seed = `
securities:
  - {isin: ABC, tickSize: 10, lotSize: 5}
brokers:
  - {id: 1, name: buyer, credit: 100000}
  - {id: 2, name: seller, credit: 0}
shareholders:
  - {id: 1, name: alice}
  - {id: 2, name: bob, positions: {ABC: 100}}
`

// Trades against a seeded repository, snapshots the balances to Redis and
// restores them into a fresh repository
func main() {
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := redisstore.NewClient(redisstore.Options{Addr: redisAddr, DB: redisDB})
	defer client.Close()
	store := redisstore.NewStore(client, prefix, logger)
	if err := store.Ping(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	fmt.Printf("Redis connection established at %s\n", redisAddr)

	s, err := memory.LoadSeed(strings.NewReader(seed))
	if err != nil {
		panic(err)
	}
	repo := memory.NewRepository()
	if err := s.Apply(repo); err != nil {
		panic(err)
	}

	security := repo.FindSecurity("ABC")
	for _, req := range []core.EnterOrderRequest{
		{RequestID: 1, OrderID: 1, Side: core.Sell, Quantity: 50, Price: 1000, BrokerID: 2, ShareholderID: 2},
		{RequestID: 2, OrderID: 2, Side: core.Buy, Quantity: 30, Price: 1000, BrokerID: 1, ShareholderID: 1},
	} {
		req.Type = core.NewOrderEntry
		req.SecurityISIN = "ABC"
		req.EntryTime = time.Now()
		res := security.NewOrder(ctx, req, repo.FindBroker(req.BrokerID), repo.FindShareholder(req.ShareholderID))
		fmt.Printf("Order %d: %s with %d trade(s)\n", req.OrderID, res.Outcome, len(res.Trades))
	}

	if err := store.Save(ctx, repo); err != nil {
		panic(err)
	}
	fmt.Printf("Saved %s\n", repo)

	restored := memory.NewRepository()
	n, err := store.Load(ctx, restored)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Loaded %d records from Redis\n", n)
	fmt.Printf("- ABC last trade price: %d\n", restored.FindSecurity("ABC").LastTradePrice())
	fmt.Printf("- Buyer credit: %s\n", restored.FindBroker(1).Credit())
	fmt.Printf("- Seller credit: %s\n", restored.FindBroker(2).Credit())
	fmt.Printf("- Alice holds %d ABC, Bob holds %d\n",
		restored.FindShareholder(1).Position("ABC"), restored.FindShareholder(2).Position("ABC"))

	// Resting orders are not part of the snapshot
	fmt.Printf("- Resting sells after restore: %d\n", restored.FindSecurity("ABC").OrderBook().Len(core.Sell))
}
