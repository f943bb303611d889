package marketmaker

import (
	"context"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
)

// Quote is the reference price of a security together with the grid its
// orders must respect
type Quote struct {
	Price    int64
	TickSize int64
	LotSize  int64
}

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current quote for the configured security
	FetchPrice(ctx context.Context) (Quote, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for entering and deleting orders
type OrderPlacer interface {
	EnterOrder(ctx context.Context, req core.EnterOrderRequest) ([]*messaging.Event, error)
	DeleteOrder(ctx context.Context, req core.DeleteOrderRequest) error
	Close() error
}

// MarketMakerStrategy defines the interface for market making strategies
type MarketMakerStrategy interface {
	// CalculateOrders calculates the orders to be placed around the quote
	CalculateOrders(ctx context.Context, quote Quote) ([]core.EnterOrderRequest, error)
}
