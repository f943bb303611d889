package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(addr string) config {
	return config{
		addr:        addr,
		isin:        "ABC",
		workers:     4,
		orders:      25,
		rate:        10_000,
		basePrice:   1000,
		spread:      5,
		quantity:    10,
		buyBroker:   1,
		sellBroker:  2,
		buyHolder:   1,
		sellHolder:  2,
		httpTimeout: time.Second,
	}
}

func TestGenerateOrder(t *testing.T) {
	cfg := testConfig("")
	rng := rand.New(rand.NewSource(1))

	sides := map[core.Side]int{}
	for id := int64(1); id <= 200; id++ {
		req := generateOrder(cfg, id, rng)
		assert.Equal(t, id, req.OrderID)
		assert.Equal(t, core.NewOrderEntry, req.Type)
		assert.GreaterOrEqual(t, req.Price, cfg.basePrice-cfg.spread)
		assert.LessOrEqual(t, req.Price, cfg.basePrice+cfg.spread)
		if req.Side == core.Buy {
			assert.Equal(t, cfg.buyBroker, req.BrokerID)
		} else {
			assert.Equal(t, cfg.sellHolder, req.ShareholderID)
		}
		sides[req.Side]++
	}
	assert.Len(t, sides, 2)
}

func TestRunLoad(t *testing.T) {
	var received atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req core.EnterOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// every tenth order is rejected
		if received.Add(1)%10 == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := runLoad(context.Background(), testConfig(srv.URL))

	assert.Equal(t, int64(100), r.sent)
	assert.Equal(t, int64(10), r.rejected)
	assert.Equal(t, int64(90), r.accepted)
	assert.Zero(t, r.failed)
	assert.Equal(t, int64(100), r.latency.TotalCount())
}

func TestRunLoadServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.workers, cfg.orders = 1, 3
	r := runLoad(context.Background(), cfg)

	assert.Equal(t, int64(3), r.failed)
	require.Error(t, r.firstErr)
	assert.Contains(t, r.firstErr.Error(), "503")
}
