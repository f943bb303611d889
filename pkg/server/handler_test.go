package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testISIN   = "ABC"
	buyer      = int64(1)
	seller     = int64(2)
	poorBroker = int64(3)
)

var testEntryTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type handlerEnv struct {
	repo      *memory.Repository
	publisher *messaging.MockPublisher
	metrics   *Metrics
	handler   *OrderHandler
}

func newRepository() *memory.Repository {
	repo := memory.NewRepository()
	repo.AddSecurity(core.NewSecurity(testISIN))
	repo.AddBroker(core.NewBroker(buyer, "buyer", fpdecimal.FromInt(100_000)))
	repo.AddBroker(core.NewBroker(seller, "seller", fpdecimal.FromInt(100_000)))
	repo.AddBroker(core.NewBroker(poorBroker, "poor", fpdecimal.FromInt(10)))
	for _, id := range []int64{buyer, seller, poorBroker} {
		sh := core.NewShareholder(id, "holder")
		sh.SetPosition(testISIN, 10_000)
		repo.AddShareholder(sh)
	}
	return repo
}

func newHandlerEnv() *handlerEnv {
	env := &handlerEnv{
		repo:      newRepository(),
		publisher: messaging.NewMockPublisher(),
		metrics:   NewMetrics(),
	}
	env.handler = NewOrderHandler(env.repo, env.publisher, env.metrics)
	return env
}

func order(requestID, orderID int64, side core.Side, quantity, price int64) core.EnterOrderRequest {
	owner := buyer
	if side == core.Sell {
		owner = seller
	}
	return core.EnterOrderRequest{
		RequestID:     requestID,
		Type:          core.NewOrderEntry,
		SecurityISIN:  testISIN,
		OrderID:       orderID,
		EntryTime:     testEntryTime,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		BrokerID:      owner,
		ShareholderID: owner,
	}
}

func (env *handlerEnv) enter(t *testing.T, req core.EnterOrderRequest) []*messaging.Event {
	t.Helper()
	return env.handler.HandleEnterOrder(context.Background(), req)
}

func eventTypes(events []*messaging.Event) []messaging.EventType {
	types := make([]messaging.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestHandleEnterOrder_AcceptedAndExecuted(t *testing.T) {
	env := newHandlerEnv()

	events := env.enter(t, order(1, 1, core.Sell, 10, 100))
	require.Equal(t, []messaging.EventType{messaging.EventOrderAccepted}, eventTypes(events))

	events = env.enter(t, order(2, 2, core.Buy, 4, 100))
	require.Equal(t, []messaging.EventType{
		messaging.EventOrderAccepted,
		messaging.EventOrderExecuted,
	}, eventTypes(events))

	executed := events[1]
	assert.Equal(t, int64(2), executed.RequestID)
	assert.Equal(t, int64(2), executed.OrderID)
	require.Len(t, executed.Trades, 1)
	assert.Equal(t, messaging.Trade{
		SecurityISIN: testISIN,
		Price:        100,
		Quantity:     4,
		BuyOrderID:   2,
		SellOrderID:  1,
	}, executed.Trades[0])

	// every returned event is published, in order
	assert.Equal(t, []messaging.EventType{
		messaging.EventOrderAccepted,
		messaging.EventOrderAccepted,
		messaging.EventOrderExecuted,
	}, env.publisher.Types())

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.trades))
	assert.Equal(t, float64(4), testutil.ToFloat64(env.metrics.tradedQuantity))
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.requests.WithLabelValues("NEW_ORDER", resultAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.bookDepth.WithLabelValues(testISIN, "SELL")))
}

func TestHandleEnterOrder_ValidationRejection(t *testing.T) {
	env := newHandlerEnv()

	req := order(5, 0, core.Buy, 0, 100)
	req.BrokerID = 99
	events := env.enter(t, req)

	require.Len(t, events, 1)
	rejected := events[0]
	assert.Equal(t, messaging.EventOrderRejected, rejected.Type)
	assert.Equal(t, int64(5), rejected.RequestID)
	assert.Equal(t, []string{
		core.MsgInvalidOrderID,
		core.MsgOrderQuantityNotPositive,
		core.MsgUnknownBrokerID,
		core.MsgInvalidPeakSize,
	}, rejected.Errors)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.requests.WithLabelValues("NEW_ORDER", resultRejected)))
}

func TestHandleEnterOrder_MatchingRejection(t *testing.T) {
	env := newHandlerEnv()
	env.enter(t, order(1, 1, core.Sell, 10, 100))

	req := order(2, 2, core.Buy, 5, 100)
	req.BrokerID = poorBroker
	events := env.enter(t, req)

	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderRejected, events[0].Type)
	assert.Equal(t, []string{core.MsgBuyerHasNotEnoughCredit}, events[0].Errors)

	book := env.repo.FindSecurity(testISIN).OrderBook()
	assert.Equal(t, int64(10), book.First(core.Sell).TotalQuantity())
	assert.Equal(t, 0, book.Len(core.Buy))
}

func TestHandleEnterOrder_StopOrderCascadeKeepsRequestID(t *testing.T) {
	env := newHandlerEnv()
	env.enter(t, order(1, 1, core.Sell, 10, 100))
	env.enter(t, order(2, 2, core.Sell, 10, 110))

	stop := order(7, 10, core.Buy, 5, 120)
	stop.StopPrice = 100
	events := env.enter(t, stop)
	require.Equal(t, []messaging.EventType{messaging.EventOrderAccepted}, eventTypes(events))
	assert.Equal(t, 1, env.repo.FindSecurity(testISIN).InactiveOrderBook().Len(core.Buy))

	events = env.enter(t, order(8, 11, core.Buy, 10, 100))
	require.Equal(t, []messaging.EventType{
		messaging.EventOrderAccepted,
		messaging.EventOrderExecuted,
		messaging.EventOrderActivated,
		messaging.EventOrderExecuted,
	}, eventTypes(events))

	activated, executed := events[2], events[3]
	assert.Equal(t, int64(7), activated.RequestID)
	assert.Equal(t, int64(10), activated.OrderID)
	assert.Equal(t, int64(7), executed.RequestID)
	require.Len(t, executed.Trades, 1)
	assert.Equal(t, int64(110), executed.Trades[0].Price)
	assert.Equal(t, int64(2), executed.Trades[0].SellOrderID)

	assert.Empty(t, env.handler.requestIDs)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.activations))
}

func TestHandleEnterOrder_StopOrderActiveOnEntry(t *testing.T) {
	env := newHandlerEnv()
	env.enter(t, order(1, 1, core.Sell, 10, 100))
	env.enter(t, order(2, 2, core.Buy, 5, 100))

	stop := order(3, 3, core.Buy, 5, 100)
	stop.StopPrice = 90
	events := env.enter(t, stop)

	assert.Equal(t, []messaging.EventType{
		messaging.EventOrderActivated,
		messaging.EventOrderAccepted,
		messaging.EventOrderExecuted,
	}, eventTypes(events))
}

func TestHandleEnterOrder_Update(t *testing.T) {
	env := newHandlerEnv()
	env.enter(t, order(1, 1, core.Buy, 10, 100))

	update := order(2, 1, core.Buy, 6, 100)
	update.Type = core.UpdateOrderEntry
	events := env.enter(t, update)
	require.Equal(t, []messaging.EventType{messaging.EventOrderUpdated}, eventTypes(events))
	assert.Equal(t, int64(2), events[0].RequestID)
	assert.Equal(t, int64(6), env.repo.FindSecurity(testISIN).OrderBook().First(core.Buy).TotalQuantity())

	missing := order(3, 42, core.Buy, 6, 100)
	missing.Type = core.UpdateOrderEntry
	events = env.enter(t, missing)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderRejected, events[0].Type)
	assert.Equal(t, []string{core.MsgOrderIDNotFound}, events[0].Errors)

	peak := order(4, 1, core.Buy, 6, 100)
	peak.Type = core.UpdateOrderEntry
	peak.PeakSize = 2
	events = env.enter(t, peak)
	require.Len(t, events, 1)
	assert.Equal(t, []string{core.MsgCannotSpecifyPeakSizeForNonIceberg}, events[0].Errors)
}

func TestHandleDeleteOrder(t *testing.T) {
	env := newHandlerEnv()
	env.enter(t, order(1, 1, core.Buy, 10, 100))
	broker := env.repo.FindBroker(buyer)
	assert.True(t, broker.Credit().Equal(fpdecimal.FromInt(100_000-1000)))

	events := env.handler.HandleDeleteOrder(context.Background(), core.DeleteOrderRequest{
		RequestID: 2, SecurityISIN: testISIN, Side: core.Buy, OrderID: 1,
	})
	require.Equal(t, []messaging.EventType{messaging.EventOrderDeleted}, eventTypes(events))
	assert.Equal(t, int64(2), events[0].RequestID)
	assert.True(t, broker.Credit().Equal(fpdecimal.FromInt(100_000)))

	events = env.handler.HandleDeleteOrder(context.Background(), core.DeleteOrderRequest{
		RequestID: 3, SecurityISIN: testISIN, Side: core.Buy, OrderID: 1,
	})
	require.Len(t, events, 1)
	assert.Equal(t, []string{core.MsgOrderIDNotFound}, events[0].Errors)

	events = env.handler.HandleDeleteOrder(context.Background(), core.DeleteOrderRequest{
		RequestID: 4, SecurityISIN: "XYZ", Side: core.Buy, OrderID: 0,
	})
	require.Len(t, events, 1)
	assert.Equal(t, []string{core.MsgInvalidOrderID, core.MsgUnknownSecurityISIN}, events[0].Errors)
}

func TestAuctionLifecycle(t *testing.T) {
	env := newHandlerEnv()
	ctx := context.Background()

	events, err := env.handler.HandleChangeMatchingState(ctx, core.ChangeMatchingStateRequest{
		SecurityISIN: testISIN, TargetState: core.Auction,
	})
	require.NoError(t, err)
	require.Equal(t, []messaging.EventType{messaging.EventSecurityStateChanged}, eventTypes(events))
	assert.Equal(t, "AUCTION", events[0].State)

	events = env.enter(t, order(1, 1, core.Buy, 10, 110))
	require.Equal(t, []messaging.EventType{messaging.EventOrderAccepted, messaging.EventOpeningPrice}, eventTypes(events))
	assert.Equal(t, int64(0), events[1].TradableQuantity)

	events = env.enter(t, order(2, 2, core.Sell, 6, 100))
	require.Equal(t, []messaging.EventType{messaging.EventOrderAccepted, messaging.EventOpeningPrice}, eventTypes(events))
	assert.Equal(t, int64(6), events[1].TradableQuantity)
	// both prices trade 6; the one closer to the last trade price wins
	assert.Equal(t, int64(100), events[1].OpeningPrice)

	events = env.handler.HandleDeleteOrder(ctx, core.DeleteOrderRequest{
		RequestID: 3, SecurityISIN: testISIN, Side: core.Sell, OrderID: 2,
	})
	require.Equal(t, []messaging.EventType{messaging.EventOrderDeleted, messaging.EventOpeningPrice}, eventTypes(events))
	assert.Equal(t, int64(0), events[1].TradableQuantity)

	env.enter(t, order(4, 3, core.Sell, 6, 100))
	events, err = env.handler.HandleChangeMatchingState(ctx, core.ChangeMatchingStateRequest{
		SecurityISIN: testISIN, TargetState: core.Continuous,
	})
	require.NoError(t, err)
	require.Equal(t, []messaging.EventType{messaging.EventTrade, messaging.EventSecurityStateChanged}, eventTypes(events))
	require.Len(t, events[0].Trades, 1)
	assert.Equal(t, int64(6), events[0].Trades[0].Quantity)
	assert.Equal(t, int64(100), events[0].Trades[0].Price)
	assert.Equal(t, "CONTINUOUS", events[1].State)

	security := env.repo.FindSecurity(testISIN)
	assert.Equal(t, core.Continuous, security.State())
	assert.Equal(t, int64(4), security.OrderBook().First(core.Buy).TotalQuantity())
}

func TestAuctionReopenActivatesStopOrders(t *testing.T) {
	env := newHandlerEnv()
	ctx := context.Background()

	// park a buy stop while trading is continuous
	env.enter(t, order(1, 1, core.Sell, 5, 100))
	env.enter(t, order(2, 2, core.Buy, 5, 100))
	env.enter(t, order(3, 3, core.Sell, 5, 130))
	stop := order(4, 4, core.Buy, 5, 130)
	stop.StopPrice = 120
	require.Equal(t, []messaging.EventType{messaging.EventOrderAccepted}, eventTypes(env.enter(t, stop)))

	_, err := env.handler.HandleChangeMatchingState(ctx, core.ChangeMatchingStateRequest{
		SecurityISIN: testISIN, TargetState: core.Auction,
	})
	require.NoError(t, err)
	env.enter(t, order(5, 5, core.Buy, 5, 125))
	env.enter(t, order(6, 6, core.Sell, 5, 125))

	events, err := env.handler.HandleChangeMatchingState(ctx, core.ChangeMatchingStateRequest{
		SecurityISIN: testISIN, TargetState: core.Continuous,
	})
	require.NoError(t, err)
	assert.Equal(t, []messaging.EventType{
		messaging.EventTrade,
		messaging.EventOrderActivated,
		messaging.EventOrderExecuted,
		messaging.EventSecurityStateChanged,
	}, eventTypes(events))
	assert.Equal(t, int64(4), events[1].RequestID)
	assert.Equal(t, int64(130), events[2].Trades[0].Price)
}

func TestHandleChangeMatchingState_UnknownSecurity(t *testing.T) {
	env := newHandlerEnv()
	_, err := env.handler.HandleChangeMatchingState(context.Background(), core.ChangeMatchingStateRequest{
		SecurityISIN: "XYZ", TargetState: core.Auction,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownSecurity))
	assert.Empty(t, env.publisher.Events())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	env := newHandlerEnv()
	env.publisher.Err = errors.New("broker down")

	events := env.enter(t, order(1, 1, core.Sell, 10, 100))
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderAccepted, events[0].Type)
	assert.Equal(t, 1, env.repo.FindSecurity(testISIN).OrderBook().Len(core.Sell))
	assert.Len(t, env.publisher.Events(), 1)
}

func TestHandlerWithoutPublisherOrMetrics(t *testing.T) {
	handler := NewOrderHandler(newRepository(), nil, nil)
	events := handler.HandleEnterOrder(context.Background(), order(1, 1, core.Sell, 10, 100))
	assert.Equal(t, []messaging.EventType{messaging.EventOrderAccepted}, eventTypes(events))
}

func TestHandleRequest(t *testing.T) {
	env := newHandlerEnv()
	ctx := context.Background()

	enter := order(1, 1, core.Sell, 10, 100)
	require.NoError(t, env.handler.HandleRequest(ctx, &messaging.Request{
		Type:       messaging.RequestEnterOrder,
		EnterOrder: &enter,
	}))
	require.NoError(t, env.handler.HandleRequest(ctx, &messaging.Request{
		Type:        messaging.RequestDeleteOrder,
		DeleteOrder: &core.DeleteOrderRequest{RequestID: 2, SecurityISIN: testISIN, Side: core.Sell, OrderID: 1},
	}))
	assert.Equal(t, []messaging.EventType{messaging.EventOrderAccepted, messaging.EventOrderDeleted}, env.publisher.Types())

	err := env.handler.HandleRequest(ctx, &messaging.Request{
		Type:                messaging.RequestChangeMatchingState,
		ChangeMatchingState: &core.ChangeMatchingStateRequest{SecurityISIN: "XYZ"},
	})
	assert.ErrorIs(t, err, core.ErrUnknownSecurity)

	err = env.handler.HandleRequest(ctx, &messaging.Request{Type: messaging.RequestEnterOrder})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
