package server

import (
	"encoding/json"
	"net/http"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type eventsResponse struct {
	Events []*messaging.Event `json:"events"`
}

type securityView struct {
	ISIN           string             `json:"isin"`
	TickSize       int64              `json:"tickSize"`
	LotSize        int64              `json:"lotSize"`
	LastTradePrice int64              `json:"lastTradePrice"`
	State          core.MatchingState `json:"state"`
}

type bookView struct {
	securityView
	Bids         []*core.Order `json:"bids"`
	Asks         []*core.Order `json:"asks"`
	InactiveBids []*core.Order `json:"inactiveBids"`
	InactiveAsks []*core.Order `json:"inactiveAsks"`
	OpeningPrice *int64        `json:"openingPrice,omitempty"`
}

type brokerView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Credit string `json:"credit"`
}

type shareholderView struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Positions map[string]int64 `json:"positions"`
}

func newSecurityView(s *core.Security) securityView {
	return securityView{
		ISIN:           s.ISIN(),
		TickSize:       s.TickSize(),
		LotSize:        s.LotSize(),
		LastTradePrice: s.LastTradePrice(),
		State:          s.State(),
	}
}

func newBookView(s *core.Security) bookView {
	view := bookView{
		securityView: newSecurityView(s),
		Bids:         nonNil(s.OrderBook().Orders(core.Buy)),
		Asks:         nonNil(s.OrderBook().Orders(core.Sell)),
		InactiveBids: nonNil(s.InactiveOrderBook().Orders(core.Buy)),
		InactiveAsks: nonNil(s.InactiveOrderBook().Orders(core.Sell)),
	}
	if s.State() == core.Auction {
		price := s.AuctionMatcher().CalculateOpeningPrice(s.OrderBook(), s.LastTradePrice())
		view.OpeningPrice = &price
	}
	return view
}

func nonNil(orders []*core.Order) []*core.Order {
	if orders == nil {
		return []*core.Order{}
	}
	return orders
}

func newBrokerView(b *core.Broker) brokerView {
	return brokerView{ID: b.ID(), Name: b.Name(), Credit: b.Credit().String()}
}

func newShareholderView(s *core.Shareholder) shareholderView {
	return shareholderView{ID: s.ID(), Name: s.Name(), Positions: s.Positions()}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
