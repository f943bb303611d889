package marketmaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/erain9/tinyme/pkg/server"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv    *httptest.Server
	cfg    *Config
	placer OrderPlacer
	mm     *MarketMaker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := memory.NewRepository()
	repo.AddSecurity(core.NewSecurity("ABC", core.WithTickSize(10), core.WithLotSize(5)))
	repo.AddBroker(core.NewBroker(1, "maker", fpdecimal.FromInt(10_000_000)))
	repo.AddBroker(core.NewBroker(2, "taker", fpdecimal.FromInt(10_000_000)))
	for _, id := range []int64{1, 2} {
		sh := core.NewShareholder(id, "holder")
		sh.SetPosition("ABC", 100_000)
		repo.AddShareholder(sh)
	}

	engine := server.NewEngine(64, zerolog.Nop())
	go engine.Run(context.Background())
	t.Cleanup(engine.Stop)
	svc := server.NewService(engine, server.NewOrderHandler(repo, messaging.NewMockPublisher(), nil), repo)
	srv := httptest.NewServer(server.NewRouter(svc, nil, nil))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.ServerURL = srv.URL
	cfg.HTTPTimeout = 5 * time.Second
	cfg.RequestTimeout = 5 * time.Second
	cfg.UpdateInterval = time.Hour

	placer := NewHTTPOrderPlacer(cfg, zerolog.Nop())
	fetcher, err := NewPriceFetcher(cfg, zerolog.Nop())
	require.NoError(t, err)
	mm := NewMarketMaker(cfg, zerolog.Nop(), placer, fetcher, NewLayeredSymmetricQuoting(cfg, zerolog.Nop()))
	return &harness{srv: srv, cfg: cfg, placer: placer, mm: mm}
}

func (h *harness) bookDepth(t *testing.T) (bids, asks int) {
	t.Helper()
	resp, err := http.Get(h.srv.URL + "/securities/ABC/book")
	require.NoError(t, err)
	defer resp.Body.Close()
	var book struct {
		Bids []json.RawMessage `json:"bids"`
		Asks []json.RawMessage `json:"asks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&book))
	return len(book.Bids), len(book.Asks)
}

func TestMarketMaker_UpdateAndStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.mm.UpdateOrders(ctx))
	assert.Equal(t, 6, h.mm.ActiveOrders())
	bids, asks := h.bookDepth(t)
	assert.Equal(t, 3, bids)
	assert.Equal(t, 3, asks)

	// the second refresh replaces the ladder instead of stacking another
	require.NoError(t, h.mm.UpdateOrders(ctx))
	assert.Equal(t, 6, h.mm.ActiveOrders())
	bids, asks = h.bookDepth(t)
	assert.Equal(t, 3, bids)
	assert.Equal(t, 3, asks)

	require.NoError(t, h.mm.Stop(ctx))
	assert.Zero(t, h.mm.ActiveOrders())
	bids, asks = h.bookDepth(t)
	assert.Zero(t, bids+asks)
}

func TestMarketMaker_StartRunsFirstUpdate(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.mm.Start(ctx)
	assert.Eventually(t, func() bool { return h.mm.ActiveOrders() == 6 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.mm.Stop(context.Background()))
}

func TestHTTPOrderPlacer_FilledOrderDeletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bid := core.EnterOrderRequest{
		RequestID: 1, Type: core.NewOrderEntry, SecurityISIN: "ABC", OrderID: 1,
		Side: core.Buy, Quantity: 10, Price: 1000, BrokerID: 1, ShareholderID: 1,
	}
	events, err := h.placer.EnterOrder(ctx, bid)
	require.NoError(t, err)
	assert.Equal(t, messaging.EventOrderAccepted, events[0].Type)

	// a taker fills the bid completely
	ask := bid
	ask.RequestID, ask.OrderID, ask.Side, ask.BrokerID, ask.ShareholderID = 2, 2, core.Sell, 2, 2
	events, err = h.placer.EnterOrder(ctx, ask)
	require.NoError(t, err)
	require.Len(t, events, 2)

	del := core.DeleteOrderRequest{RequestID: 3, SecurityISIN: "ABC", Side: core.Buy, OrderID: 1}
	assert.NoError(t, h.placer.DeleteOrder(ctx, del))

	del.SecurityISIN = "XYZ"
	assert.ErrorIs(t, h.placer.DeleteOrder(ctx, del), ErrOrderRejected)
}

func TestHTTPOrderPlacer_Rejection(t *testing.T) {
	h := newHarness(t)

	req := core.EnterOrderRequest{
		RequestID: 1, Type: core.NewOrderEntry, SecurityISIN: "ABC", OrderID: 1,
		Side: core.Buy, Quantity: 7, Price: 1000, BrokerID: 1, ShareholderID: 1,
	}
	events, err := h.placer.EnterOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrOrderRejected)
	require.NotEmpty(t, events)
	assert.Contains(t, events[0].Errors, core.MsgQuantityNotMultipleOfLotSize)
}

type failingFetcher struct{}

func (failingFetcher) FetchPrice(context.Context) (Quote, error) {
	return Quote{}, errors.New("feed down")
}
func (failingFetcher) Close() error { return nil }

func TestMarketMaker_FetchFailureKeepsLadder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.mm.UpdateOrders(ctx))

	h.mm.priceFetcher = failingFetcher{}
	assert.Error(t, h.mm.UpdateOrders(ctx))
	assert.Equal(t, 6, h.mm.ActiveOrders())
}
