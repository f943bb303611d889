package core

import (
	"context"

	"github.com/erain9/tinyme/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Matcher runs an order through one matching protocol
type Matcher interface {
	Execute(ctx context.Context, order *Order) *MatchResult
}

// rollbackTrades undoes a partial sweep: control effects first, then the
// book and the incoming order are rewound from the trade snapshots, newest
// trade first, so every resting order ends up where it was before.
func rollbackTrades(controls *ControlList, incoming *Order, trades []Trade) {
	controls.RollbackTrades(incoming, trades)
	book := incoming.Security().OrderBook()
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		book.RestoreOrder(t.OrderOf(incoming.Side().Opposite()))
		incoming.restoreQuantity(t.OrderOf(incoming.Side()))
	}
}

func orderAttributes(order *Order) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otel.AttributeSecurity, order.Security().ISIN()),
		attribute.Int64(otel.AttributeOrderID, order.ID()),
		attribute.String(otel.AttributeOrderSide, order.Side().String()),
		attribute.String(otel.AttributeOrderKind, order.Kind().String()),
		attribute.Int64(otel.AttributeOrderQuantity, order.TotalQuantity()),
		attribute.Int64(otel.AttributeOrderPrice, order.Price()),
	}
}

// endMatchSpan annotates span with result, records the match metrics and
// ends the span
func endMatchSpan(ctx context.Context, span trace.Span, protocol string, result *MatchResult) {
	var traded int64
	for _, t := range result.Trades {
		traded += t.Quantity
	}
	otel.AddAttributes(span,
		attribute.String(otel.AttributeOutcome, result.Outcome.String()),
		attribute.Int(otel.AttributeTradeCount, len(result.Trades)),
	)
	if result.Remainder != nil {
		otel.AddAttributes(span, attribute.Int64(otel.AttributeRemainingQuantity, result.Remainder.TotalQuantity()))
	}
	if result.Outcome.Succeeded() {
		span.SetStatus(codes.Ok, "matching finished")
	} else {
		span.SetStatus(codes.Error, result.Outcome.String())
	}
	otel.GetMatchingMetrics().RecordMatch(ctx, protocol, result.Outcome.String(), int64(len(result.Trades)), traded)
	span.End()
}
