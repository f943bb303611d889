package marketmaker

import (
	"context"
	"testing"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		ISIN:              "ABC",
		BrokerID:          1,
		ShareholderID:     1,
		FallbackPrice:     1000,
		NumLevels:         3,
		BaseSpreadPercent: 0.1,
		PriceStepPercent:  0.05,
		OrderSize:         12,
		OrderIDBase:       100,
		MaxRetries:        3,
	}
}

func TestMarketMakerStrategy(t *testing.T) {
	strategy := NewLayeredSymmetricQuoting(testConfig(), zerolog.Nop())

	t.Run("Basic order creation", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), Quote{Price: 50_000, TickSize: 10, LotSize: 5})
		require.NoError(t, err)
		require.Len(t, orders, 6)

		for i, order := range orders {
			if i%2 == 0 {
				assert.Equal(t, core.Buy, order.Side)
			} else {
				assert.Equal(t, core.Sell, order.Side)
			}
			assert.Equal(t, core.NewOrderEntry, order.Type)
			assert.Equal(t, "ABC", order.SecurityISIN)
			assert.Equal(t, int64(10), order.Quantity, "rounded down to the lot size")
			assert.Equal(t, order.OrderID, order.RequestID)
		}
		assert.Equal(t, int64(101), orders[0].OrderID)
		assert.Equal(t, int64(106), orders[5].OrderID)
	})

	t.Run("Order price spacing", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), Quote{Price: 50_000, TickSize: 10, LotSize: 5})
		require.NoError(t, err)

		var bids, asks []int64
		for _, order := range orders {
			assert.Zero(t, order.Price%10, "price %d off the tick grid", order.Price)
			if order.Side == core.Buy {
				bids = append(bids, order.Price)
			} else {
				asks = append(asks, order.Price)
			}
		}
		assert.Equal(t, []int64{49_970, 49_950, 49_920}, bids)
		assert.Equal(t, []int64{50_030, 50_050, 50_080}, asks)
	})

	t.Run("Levels narrower than a tick", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), Quote{Price: 100, TickSize: 10, LotSize: 1})
		require.NoError(t, err)
		require.Len(t, orders, 6)
		prices := make([]int64, 0, len(orders))
		for _, order := range orders {
			prices = append(prices, order.Price)
		}
		assert.Equal(t, []int64{90, 110, 80, 120, 70, 130}, prices)
	})

	t.Run("Bids below zero are dropped", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), Quote{Price: 10, TickSize: 10, LotSize: 1})
		require.NoError(t, err)
		require.Len(t, orders, 3)
		for _, order := range orders {
			assert.Equal(t, core.Sell, order.Side)
		}
	})

	t.Run("Non-positive price", func(t *testing.T) {
		_, err := strategy.CalculateOrders(context.Background(), Quote{Price: 0, TickSize: 1, LotSize: 1})
		assert.Error(t, err)
	})
}
