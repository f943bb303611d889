package marketmaker

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/rs/zerolog"
)

// LayeredSymmetricQuoting implements a symmetric market making strategy with multiple price levels
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger zerolog.Logger
	nextID atomic.Int64
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger zerolog.Logger) *LayeredSymmetricQuoting {
	s := &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With().Str("component", "LayeredSymmetricQuoting").Logger(),
	}
	s.nextID.Store(cfg.OrderIDBase)
	return s
}

// CalculateOrders implements MarketMakerStrategy. Bids round down and asks
// round up to the tick grid, so every level sits strictly away from the
// quoted price.
func (s *LayeredSymmetricQuoting) CalculateOrders(ctx context.Context, quote Quote) ([]core.EnterOrderRequest, error) {
	if quote.Price <= 0 {
		return nil, fmt.Errorf("cannot quote around non-positive price %d", quote.Price)
	}
	tick := max(quote.TickSize, 1)
	lot := max(quote.LotSize, 1)
	quantity := max(s.cfg.OrderSize/lot, 1) * lot

	price := float64(quote.Price)
	baseHalfSpread := price * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := price * (s.cfg.PriceStepPercent / 100)

	orders := make([]core.EnterOrderRequest, 0, s.cfg.NumLevels*2)
	now := time.Now()
	lastBid, lastAsk := quote.Price, quote.Price

	for i := 1; i <= s.cfg.NumLevels; i++ {
		offset := baseHalfSpread + float64(i-1)*priceStep
		bidPrice := floorToTick(price-offset, tick)
		askPrice := ceilToTick(price+offset, tick)

		// levels closer than one tick collapse onto the previous one
		bidPrice = min(bidPrice, lastBid-tick)
		askPrice = max(askPrice, lastAsk+tick)
		lastBid, lastAsk = bidPrice, askPrice

		if bidPrice > 0 {
			orders = append(orders, s.order(core.Buy, quantity, bidPrice, now))
		}
		orders = append(orders, s.order(core.Sell, quantity, askPrice, now))

		s.logger.Debug().
			Int("level", i).
			Int64("bid_price", bidPrice).
			Int64("ask_price", askPrice).
			Int64("quantity", quantity).
			Msg("Calculated order pair")
	}

	return orders, nil
}

func (s *LayeredSymmetricQuoting) order(side core.Side, quantity, price int64, now time.Time) core.EnterOrderRequest {
	id := s.nextID.Add(1)
	return core.EnterOrderRequest{
		RequestID:     id,
		Type:          core.NewOrderEntry,
		SecurityISIN:  s.cfg.ISIN,
		OrderID:       id,
		EntryTime:     now,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		BrokerID:      s.cfg.BrokerID,
		ShareholderID: s.cfg.ShareholderID,
	}
}

func floorToTick(price float64, tick int64) int64 {
	return int64(math.Floor(price/float64(tick))) * tick
}

func ceilToTick(price float64, tick int64) int64 {
	return int64(math.Ceil(price/float64(tick))) * tick
}
