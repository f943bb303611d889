package core

import (
	"context"

	"github.com/erain9/tinyme/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AuctionMatcher collects orders during a call auction and clears them
// all at a single opening price when the auction ends
type AuctionMatcher struct {
	controls *ControlList
}

// NewAuctionMatcher creates a matcher running controls
func NewAuctionMatcher(controls *ControlList) *AuctionMatcher {
	return &AuctionMatcher{controls: controls}
}

// Execute queues order without trading and reports the opening price the
// book would clear at now
func (m *AuctionMatcher) Execute(ctx context.Context, order *Order) *MatchResult {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanAuctionOrder, orderAttributes(order)...)

	var result *MatchResult
	if outcome := m.controls.CanStartExecution(order); outcome != Approved {
		result = NewMatchResult(outcome, order)
	} else {
		m.controls.ExecutionStarted(order)
		security := order.Security()
		security.OrderBook().Enqueue(order)
		price := m.CalculateOpeningPrice(security.OrderBook(), security.LastTradePrice())
		result = AuctionResult(order, nil, price, m.TradableQuantityAt(security.OrderBook(), price))
		otel.AddAttributes(span, attribute.Int64(otel.AttributeOpeningPrice, price))
	}

	endMatchSpan(ctx, span, Auction.String(), result)
	return result
}

// TradableQuantityAt is the quantity that would trade if the book cleared at price
func (m *AuctionMatcher) TradableQuantityAt(book *OrderBook, price int64) int64 {
	return min(book.TradableQuantity(Buy, price), book.TradableQuantity(Sell, price))
}

// CalculateOpeningPrice picks the price that trades the most. Candidates
// are every price in the book plus lastTradePrice itself. Ties go to the
// price closest to lastTradePrice, then to the lower price. It returns
// InvalidOpeningPrice when nothing would trade.
func (m *AuctionMatcher) CalculateOpeningPrice(book *OrderBook, lastTradePrice int64) int64 {
	best := lastTradePrice
	bestQuantity := m.TradableQuantityAt(book, lastTradePrice)
	for _, price := range book.UniquePrices() {
		quantity := m.TradableQuantityAt(book, price)
		if isBetterOpeningPrice(price, quantity, best, bestQuantity, lastTradePrice) {
			best, bestQuantity = price, quantity
		}
	}
	if bestQuantity == 0 {
		return InvalidOpeningPrice
	}
	return best
}

func isBetterOpeningPrice(price, quantity, best, bestQuantity, lastTradePrice int64) bool {
	if quantity != bestQuantity {
		return quantity > bestQuantity
	}
	distance, bestDistance := abs(price-lastTradePrice), abs(best-lastTradePrice)
	if distance != bestDistance {
		return distance < bestDistance
	}
	return price < best
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// Reopen clears the auction book at the opening price: heads of both sides
// trade at that price until one side no longer accepts it. Positions move
// through MatchingAccepted with a nil order. The security's last trade
// price becomes the opening price if anything traded.
func (m *AuctionMatcher) Reopen(ctx context.Context, security *Security) *MatchResult {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanReopen,
		attribute.String(otel.AttributeSecurity, security.ISIN()),
	)
	defer span.End()

	book := security.OrderBook()
	price := m.CalculateOpeningPrice(book, security.LastTradePrice())
	otel.AddAttributes(span, attribute.Int64(otel.AttributeOpeningPrice, price))

	var trades []Trade
	for book.HasOrderOfSide(Buy) && book.HasOrderOfSide(Sell) {
		buy, sell := book.First(Buy), book.First(Sell)
		if !buy.Matches(price) || !sell.Matches(price) {
			break
		}
		quantity := min(buy.Quantity(), sell.Quantity())
		trade := NewTrade(security.ISIN(), price, quantity, buy, sell)
		m.controls.TradeAccepted(buy, sell, trade)
		trades = append(trades, trade)
	}

	result := AuctionResult(nil, trades, price, 0)
	m.controls.MatchingAccepted(nil, result)
	if len(trades) > 0 {
		security.setLastTradePrice(price)
	}

	var traded int64
	for _, t := range trades {
		traded += t.Quantity
	}
	result.TradableQuantity = traded
	otel.AddAttributes(span, attribute.Int(otel.AttributeTradeCount, len(trades)))
	span.SetStatus(codes.Ok, "auction reopened")
	otel.GetMatchingMetrics().RecordMatch(ctx, "REOPEN", result.Outcome.String(), int64(len(trades)), traded)
	return result
}
