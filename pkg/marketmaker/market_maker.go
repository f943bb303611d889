package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/rs/zerolog"
)

// MarketMaker keeps a ladder of quotes resting on one security, replacing
// it on every update interval
type MarketMaker struct {
	cfg          *Config
	logger       zerolog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     MarketMakerStrategy
	activeOrders sync.Map // map[int64]core.Side
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger zerolog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy MarketMakerStrategy) *MarketMaker {
	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With().Str("component", "MarketMaker").Logger(),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the market making process
func (m *MarketMaker) Start(ctx context.Context) {
	m.logger.Info().
		Str("isin", m.cfg.ISIN).
		Dur("update_interval", m.cfg.UpdateInterval).
		Msg("Starting market maker service")

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop shuts the loop down and deletes every order still resting
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info().Msg("Stopping market maker service")
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}
	m.logger.Info().Msg("Market maker stopped")
	return nil
}

func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	if err := m.UpdateOrders(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to update orders")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.UpdateOrders(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Failed to update orders")
			}
		}
	}
}

// UpdateOrders performs one refresh: fetch the quote, pull the old ladder
// and enter the new one. Rejected orders are logged and skipped.
func (m *MarketMaker) UpdateOrders(ctx context.Context) error {
	quote, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := m.strategy.CalculateOrders(ctx, quote)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, order := range orders {
		_, err := m.orderPlacer.EnterOrder(ctx, order)
		if err != nil {
			ev := m.logger.Error()
			if errors.Is(err, ErrOrderRejected) {
				ev = m.logger.Warn()
			}
			ev.Err(err).
				Int64("order_id", order.OrderID).
				Stringer("side", order.Side).
				Int64("price", order.Price).
				Msg("Failed to place order")
			continue
		}
		m.activeOrders.Store(order.OrderID, order.Side)
	}

	return nil
}

// ActiveOrders returns the number of orders the market maker believes rest
// in the book
func (m *MarketMaker) ActiveOrders() int {
	n := 0
	m.activeOrders.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	m.activeOrders.Range(func(key, value any) bool {
		orderID, side := key.(int64), value.(core.Side)
		req := core.DeleteOrderRequest{
			RequestID:    orderID,
			SecurityISIN: m.cfg.ISIN,
			Side:         side,
			OrderID:      orderID,
		}

		if err := m.orderPlacer.DeleteOrder(ctx, req); err != nil {
			m.logger.Error().Err(err).Int64("order_id", orderID).Msg("Failed to cancel order")
			lastErr = err
			return true
		}

		m.activeOrders.Delete(orderID)
		return true
	})

	return lastErr
}
