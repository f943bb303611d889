package main

import (
	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
)

// Client-side mirrors of the server's JSON answers.

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

type orderView struct {
	ID                int64     `json:"id"`
	Side              core.Side `json:"side"`
	Price             int64     `json:"price"`
	Quantity          int64     `json:"quantity"`
	DisplayedQuantity int64     `json:"displayedQuantity"`
	PeakSize          int64     `json:"peakSize"`
	StopPrice         int64     `json:"stopPrice"`
	Status            string    `json:"status"`
	BrokerID          int64     `json:"brokerId"`
	ShareholderID     int64     `json:"shareholderId"`
}

type bookView struct {
	securityView
	Bids         []orderView `json:"bids"`
	Asks         []orderView `json:"asks"`
	InactiveBids []orderView `json:"inactiveBids"`
	InactiveAsks []orderView `json:"inactiveAsks"`
	OpeningPrice *int64      `json:"openingPrice"`
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
