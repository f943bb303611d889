package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/erain9/tinyme/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

type orderKey struct {
	isin    string
	orderID int64
}

// OrderHandler turns requests into calls on the securities of a
// repository and reports what happened as events. It is not safe for
// concurrent use; run it on an Engine.
type OrderHandler struct {
	repo      core.Repository
	publisher messaging.EventPublisher
	metrics   *Metrics

	// request ids of parked stop orders, reported again on activation
	requestIDs map[orderKey]int64
}

// NewOrderHandler creates a handler. publisher and metrics may be nil.
func NewOrderHandler(repo core.Repository, publisher messaging.EventPublisher, metrics *Metrics) *OrderHandler {
	return &OrderHandler{
		repo:       repo,
		publisher:  publisher,
		metrics:    metrics,
		requestIDs: make(map[orderKey]int64),
	}
}

// HandleEnterOrder validates and executes a new order or an update and
// publishes the resulting events, which are also returned
func (h *OrderHandler) HandleEnterOrder(ctx context.Context, req core.EnterOrderRequest) []*messaging.Event {
	spanName := otel.SpanEnterOrder
	if req.Type == core.UpdateOrderEntry {
		spanName = otel.SpanUpdateOrder
	}
	ctx, span := otel.StartOrderSpan(ctx, spanName,
		attribute.String(otel.AttributeSecurity, req.SecurityISIN),
		attribute.Int64(otel.AttributeOrderID, req.OrderID),
		attribute.String(otel.AttributeOrderSide, req.Side.String()),
		attribute.Int64(otel.AttributeOrderQuantity, req.Quantity),
		attribute.Int64(otel.AttributeOrderPrice, req.Price),
	)
	defer span.End()

	start := time.Now()
	events := h.enterOrder(ctx, req)
	otel.AddAttributes(span, attribute.Int(otel.AttributeEventCount, len(events)))
	h.finish(ctx, req.Type.String(), start, events)
	return events
}

func (h *OrderHandler) enterOrder(ctx context.Context, req core.EnterOrderRequest) []*messaging.Event {
	isin := req.SecurityISIN
	if err := core.ValidateEnterOrder(req, h.repo); err != nil {
		return []*messaging.Event{messaging.OrderRejected(isin, req.RequestID, req.OrderID, reasons(err))}
	}

	security := h.repo.FindSecurity(isin)
	var result *core.MatchResult
	if req.Type == core.UpdateOrderEntry {
		r, err := security.UpdateOrder(ctx, req)
		if err != nil {
			return []*messaging.Event{messaging.OrderRejected(isin, req.RequestID, req.OrderID, reasons(err))}
		}
		result = r
	} else {
		broker := h.repo.FindBroker(req.BrokerID)
		shareholder := h.repo.FindShareholder(req.ShareholderID)
		result = security.NewOrder(ctx, req, broker, shareholder)
	}

	if msg, rejected := core.RejectionMessage(result.Outcome); rejected {
		return []*messaging.Event{messaging.OrderRejected(isin, req.RequestID, req.OrderID, []string{msg})}
	}

	var events []*messaging.Event
	if result.Outcome == core.Executed && req.StopPrice != 0 {
		events = append(events, messaging.OrderActivated(isin, req.RequestID, req.OrderID))
	}
	if req.Type == core.UpdateOrderEntry {
		events = append(events, messaging.OrderUpdated(isin, req.RequestID, req.OrderID))
	} else {
		events = append(events, messaging.OrderAccepted(isin, req.RequestID, req.OrderID))
	}

	key := orderKey{isin: isin, orderID: req.OrderID}
	if result.Outcome == core.IsInactive {
		h.requestIDs[key] = req.RequestID
	} else {
		delete(h.requestIDs, key)
	}

	if len(result.Trades) > 0 {
		events = append(events, messaging.OrderExecuted(isin, req.RequestID, req.OrderID, result.Trades))
		h.metrics.observeTrades(result.Trades)
	}
	if security.State() == core.Auction {
		events = append(events, openingPrice(security))
	}
	if security.LastTradePrice() != core.NoTradePrice {
		events = append(events, h.activate(ctx, security)...)
	}
	h.metrics.observeBook(security)
	return events
}

// HandleDeleteOrder removes an order and publishes the resulting events
func (h *OrderHandler) HandleDeleteOrder(ctx context.Context, req core.DeleteOrderRequest) []*messaging.Event {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanDeleteOrder,
		attribute.String(otel.AttributeSecurity, req.SecurityISIN),
		attribute.Int64(otel.AttributeOrderID, req.OrderID),
		attribute.String(otel.AttributeOrderSide, req.Side.String()),
	)
	defer span.End()

	start := time.Now()
	events := h.deleteOrder(ctx, req)
	otel.AddAttributes(span, attribute.Int(otel.AttributeEventCount, len(events)))
	h.finish(ctx, "DELETE_ORDER", start, events)
	return events
}

func (h *OrderHandler) deleteOrder(ctx context.Context, req core.DeleteOrderRequest) []*messaging.Event {
	isin := req.SecurityISIN
	if err := core.ValidateDeleteOrder(req, h.repo); err != nil {
		return []*messaging.Event{messaging.OrderRejected(isin, req.RequestID, req.OrderID, reasons(err))}
	}

	security := h.repo.FindSecurity(isin)
	if _, err := security.DeleteOrder(ctx, req); err != nil {
		return []*messaging.Event{messaging.OrderRejected(isin, req.RequestID, req.OrderID, reasons(err))}
	}
	delete(h.requestIDs, orderKey{isin: isin, orderID: req.OrderID})

	events := []*messaging.Event{messaging.OrderDeleted(isin, req.RequestID, req.OrderID)}
	if security.State() == core.Auction {
		events = append(events, openingPrice(security))
	}
	h.metrics.observeBook(security)
	return events
}

// HandleChangeMatchingState switches a security between continuous
// trading and auction. Leaving an auction publishes one Trade event per
// trade made at the opening price.
func (h *OrderHandler) HandleChangeMatchingState(ctx context.Context, req core.ChangeMatchingStateRequest) ([]*messaging.Event, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanChangeState,
		attribute.String(otel.AttributeSecurity, req.SecurityISIN),
		attribute.String(otel.AttributeMatchingState, req.TargetState.String()),
	)
	defer span.End()

	start := time.Now()
	security := h.repo.FindSecurity(req.SecurityISIN)
	if security == nil {
		h.metrics.observeRequest("CHANGE_MATCHING_STATE", resultError, time.Since(start))
		span.RecordError(core.ErrUnknownSecurity)
		return nil, fmt.Errorf("change matching state of %q: %w", req.SecurityISIN, core.ErrUnknownSecurity)
	}

	result := security.ChangeMatchingState(ctx, req.TargetState)
	var events []*messaging.Event
	for _, trade := range result.Trades {
		events = append(events, messaging.TradeEvent(trade))
	}
	h.metrics.observeTrades(result.Trades)
	if len(result.Trades) > 0 {
		events = append(events, h.activate(ctx, security)...)
	}
	events = append(events, messaging.SecurityStateChanged(req.SecurityISIN, req.TargetState))
	h.metrics.observeBook(security)

	otel.AddAttributes(span,
		attribute.Int(otel.AttributeTradeCount, len(result.Trades)),
		attribute.Int(otel.AttributeEventCount, len(events)),
	)
	h.finish(ctx, "CHANGE_MATCHING_STATE", start, events)
	return events, nil
}

// HandleRequest dispatches a request that arrived over a message bus
func (h *OrderHandler) HandleRequest(ctx context.Context, req *messaging.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch req.Type {
	case messaging.RequestEnterOrder:
		h.HandleEnterOrder(ctx, *req.EnterOrder)
	case messaging.RequestDeleteOrder:
		h.HandleDeleteOrder(ctx, *req.DeleteOrder)
	case messaging.RequestChangeMatchingState:
		_, err := h.HandleChangeMatchingState(ctx, *req.ChangeMatchingState)
		return err
	}
	return nil
}

// activate runs the stop-order cascade of security, reporting every
// activated order under the request id that entered it
func (h *OrderHandler) activate(ctx context.Context, security *core.Security) []*messaging.Event {
	activations := security.ActivateTriggered(ctx)
	isin := security.ISIN()

	var events []*messaging.Event
	for _, a := range activations {
		key := orderKey{isin: isin, orderID: a.Order.ID()}
		requestID := h.requestIDs[key]
		delete(h.requestIDs, key)

		events = append(events, messaging.OrderActivated(isin, requestID, a.Order.ID()))
		if len(a.Result.Trades) > 0 {
			events = append(events, messaging.OrderExecuted(isin, requestID, a.Order.ID(), a.Result.Trades))
			h.metrics.observeTrades(a.Result.Trades)
		}
	}
	h.metrics.observeActivations(len(activations))
	return events
}

func (h *OrderHandler) finish(ctx context.Context, requestType string, start time.Time, events []*messaging.Event) {
	elapsed := time.Since(start)
	rejected := len(events) > 0 && events[0].Type == messaging.EventOrderRejected

	result := resultAccepted
	if rejected {
		result = resultRejected
	}
	h.metrics.observeRequest(requestType, result, elapsed)
	otel.GetRequestMetrics().RecordRequest(ctx, requestType, elapsed, rejected)
	h.metrics.observeEvents(events)

	h.publish(ctx, events)
}

func (h *OrderHandler) publish(ctx context.Context, events []*messaging.Event) {
	if h.publisher == nil || len(events) == 0 {
		return
	}
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPublishEvents,
		attribute.Int(otel.AttributeEventCount, len(events)),
	)
	defer span.End()

	logger := logging.FromContext(ctx)
	for _, event := range events {
		if err := h.publisher.Publish(ctx, event); err != nil {
			span.RecordError(err)
			logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Str("isin", event.SecurityISIN).
				Msg("Failed to publish event")
		}
	}
}

func openingPrice(security *core.Security) *messaging.Event {
	auction := security.AuctionMatcher()
	price := auction.CalculateOpeningPrice(security.OrderBook(), security.LastTradePrice())
	return messaging.OpeningPrice(security.ISIN(), price, auction.TradableQuantityAt(security.OrderBook(), price))
}

func reasons(err error) []string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Reasons
	}
	return []string{err.Error()}
}
