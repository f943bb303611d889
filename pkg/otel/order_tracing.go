package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanEnterOrder    = "enter_order"
	SpanUpdateOrder   = "update_order"
	SpanDeleteOrder   = "delete_order"
	SpanChangeState   = "change_matching_state"
	SpanMatchOrder    = "match_order"
	SpanAuctionOrder  = "auction_order"
	SpanReopen        = "auction_reopen"
	SpanActivate      = "activate_stop_orders"
	SpanPublishEvents = "publish_events"

	// Attribute keys
	AttributeSecurity          = "security.isin"
	AttributeMatchingState     = "security.matching_state"
	AttributeOrderID           = "order.id"
	AttributeOrderSide         = "order.side"
	AttributeOrderKind         = "order.kind"
	AttributeOrderQuantity     = "order.quantity"
	AttributeOrderPrice        = "order.price"
	AttributeOrderStatus       = "order.status"
	AttributeOutcome           = "match.outcome"
	AttributeRemainingQuantity = "order.remaining_quantity"
	AttributeTradeCount        = "trade.count"
	AttributeOpeningPrice      = "auction.opening_price"
	AttributeActivatedCount    = "stop.activated_count"
	AttributeEventCount        = "event.count"
)

// StartOrderSpan starts a new span for order processing. Request-level
// spans go to the order service tracer, matching spans to the matching
// engine tracer. Without Init the global (no-op) provider is used.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	switch name {
	case SpanEnterOrder, SpanUpdateOrder, SpanDeleteOrder, SpanChangeState, SpanPublishEvents:
		tracer = GetOrderServiceTracer()
	default:
		tracer = GetMatchingEngineTracer()
	}

	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
