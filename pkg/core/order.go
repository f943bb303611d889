package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Sell Side = iota
	Buy
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side of the book
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidArgument, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "BUY":
		*s = Buy
	case "SELL":
		*s = Sell
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidArgument, string(text))
	}
	return nil
}

// OrderStatus is the lifecycle state of an order
type OrderStatus int

// Order statuses
const (
	StatusNew OrderStatus = iota
	StatusQueued
	StatusUpdating
	StatusActive
	StatusInactive
	StatusSnapshot
)

// String returns status as string
func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusQueued:
		return "QUEUED"
	case StatusUpdating:
		return "UPDATING"
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusSnapshot:
		return "SNAPSHOT"
	default:
		return "UNKNOWN"
	}
}

// OrderKind tells plain, iceberg and stop-limit orders apart
type OrderKind int

// Order kinds
const (
	KindPlain OrderKind = iota
	KindIceberg
	KindStopLimit
)

// String returns kind as string
func (k OrderKind) String() string {
	switch k {
	case KindPlain:
		return "LIMIT"
	case KindIceberg:
		return "ICEBERG"
	case KindStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Order stores information about order. Prices are in ticks and
// quantities in shares; only money (credit, trade value) is decimal.
type Order struct {
	id          int64
	security    *Security
	side        Side
	price       int64
	quantity    int64
	originalQty int64
	minExecQty  int64
	executedQty int64
	entryTime   time.Time
	broker      *Broker
	shareholder *Shareholder
	status      OrderStatus
	seq         uint64

	kind      OrderKind
	peakSize  int64
	displayed int64
	stopPrice int64
	triggered bool

	// live points from a snapshot back to the order it was taken from
	live *Order
}

// NewOrder creates a plain limit order
func NewOrder(id int64, security *Security, side Side, quantity, price int64, broker *Broker,
	shareholder *Shareholder, entryTime time.Time, minExecQty int64) *Order {
	return &Order{
		id:          id,
		security:    security,
		side:        side,
		price:       price,
		quantity:    quantity,
		originalQty: quantity,
		minExecQty:  minExecQty,
		entryTime:   entryTime,
		broker:      broker,
		shareholder: shareholder,
		status:      StatusNew,
		kind:        KindPlain,
	}
}

// NewIcebergOrder creates an order that only displays peakSize shares at a time
func NewIcebergOrder(id int64, security *Security, side Side, quantity, price int64, broker *Broker,
	shareholder *Shareholder, entryTime time.Time, peakSize, minExecQty int64) *Order {
	o := NewOrder(id, security, side, quantity, price, broker, shareholder, entryTime, minExecQty)
	o.kind = KindIceberg
	o.peakSize = peakSize
	o.displayed = min(peakSize, quantity)
	return o
}

// NewStopLimitOrder creates an order that stays out of the book until stopPrice is crossed
func NewStopLimitOrder(id int64, security *Security, side Side, quantity, price int64, broker *Broker,
	shareholder *Shareholder, entryTime time.Time, stopPrice int64) *Order {
	o := NewOrder(id, security, side, quantity, price, broker, shareholder, entryTime, 0)
	o.kind = KindStopLimit
	o.stopPrice = stopPrice
	return o
}

// ID returns the order id
func (o *Order) ID() int64 {
	return o.id
}

// Security returns the security the order was entered for
func (o *Order) Security() *Security {
	return o.security
}

// Side returns the order side
func (o *Order) Side() Side {
	return o.side
}

// Price returns the limit price
func (o *Order) Price() int64 {
	return o.price
}

// Quantity returns the quantity available for matching. A resting iceberg
// only exposes its displayed slice; an order being matched exposes everything.
func (o *Order) Quantity() int64 {
	if o.kind == KindIceberg && !o.isIncoming() {
		return o.displayed
	}
	return o.quantity
}

// TotalQuantity returns the remaining quantity including any hidden reserve
func (o *Order) TotalQuantity() int64 {
	return o.quantity
}

// OriginalQty returns the quantity the order was entered with
func (o *Order) OriginalQty() int64 {
	return o.originalQty
}

// MinimumExecutionQuantity returns the minimum fill required at entry
func (o *Order) MinimumExecutionQuantity() int64 {
	return o.minExecQty
}

// ExecutionQuantity returns the quantity filled so far
func (o *Order) ExecutionQuantity() int64 {
	return o.executedQty
}

// EntryTime returns the time the order was entered
func (o *Order) EntryTime() time.Time {
	return o.entryTime
}

// Broker returns the owning broker
func (o *Order) Broker() *Broker {
	return o.broker
}

// Shareholder returns the owning shareholder
func (o *Order) Shareholder() *Shareholder {
	return o.shareholder
}

// Status returns the lifecycle status
func (o *Order) Status() OrderStatus {
	return o.status
}

// Kind returns the order variant
func (o *Order) Kind() OrderKind {
	return o.kind
}

// IsIceberg reports whether the order hides part of its quantity
func (o *Order) IsIceberg() bool {
	return o.kind == KindIceberg
}

// IsStopLimit reports whether the order waits for a stop price
func (o *Order) IsStopLimit() bool {
	return o.kind == KindStopLimit
}

// PeakSize returns the iceberg peak size, zero for other kinds
func (o *Order) PeakSize() int64 {
	return o.peakSize
}

// StopPrice returns the stop price, zero for other kinds
func (o *Order) StopPrice() int64 {
	return o.stopPrice
}

// Value is the money needed to cover the whole remaining quantity
func (o *Order) Value() fpdecimal.Decimal {
	return fpdecimal.FromInt(o.price * o.quantity)
}

// Matches reports whether a trade at price is acceptable to this order
func (o *Order) Matches(price int64) bool {
	if o.side == Buy {
		return o.price >= price
	}
	return o.price <= price
}

// QueuesBefore reports whether o has a strictly better price than other
func (o *Order) QueuesBefore(other *Order) bool {
	if o.side == Buy {
		return o.price > other.price
	}
	return o.price < other.price
}

// IsActive reports whether a stop-limit order may trade at lastTradePrice.
// Orders of other kinds are always active.
func (o *Order) IsActive(lastTradePrice int64) bool {
	if o.kind != KindStopLimit || o.triggered {
		return true
	}
	if o.side == Buy {
		return o.stopPrice <= lastTradePrice
	}
	return o.stopPrice >= lastTradePrice
}

// HasEnoughExecutions reports whether the minimum execution quantity was reached
func (o *Order) HasEnoughExecutions() bool {
	return o.executedQty >= o.minExecQty
}

// DecreaseQuantity records a fill of amount shares
func (o *Order) DecreaseQuantity(amount int64) {
	o.quantity -= amount
	o.executedQty += amount
	if o.kind == KindIceberg && !o.isIncoming() {
		o.displayed -= amount
	}
}

// Replenish refills the displayed slice of an iceberg from its reserve
func (o *Order) Replenish() {
	if o.kind != KindIceberg {
		return
	}
	o.displayed = min(o.peakSize, o.quantity)
}

// Snapshot returns an immutable copy of the order's current state
func (o *Order) Snapshot() *Order {
	s := *o
	s.status = StatusSnapshot
	s.live = o.origin()
	return &s
}

// IsPriorityLostAfterUpdate reports whether applying req sends the order
// to the back of its price level
func (o *Order) IsPriorityLostAfterUpdate(req EnterOrderRequest) bool {
	if o.price != req.Price || req.Quantity > o.quantity {
		return true
	}
	return o.kind == KindIceberg && req.PeakSize > o.peakSize
}

// UpdateFromRequest applies the mutable fields of an update request
func (o *Order) UpdateFromRequest(req EnterOrderRequest) {
	o.originalQty += req.Quantity - o.quantity
	o.quantity = req.Quantity
	o.price = req.Price
	switch o.kind {
	case KindIceberg:
		if req.PeakSize > o.peakSize {
			o.displayed = min(o.quantity, req.PeakSize)
		} else {
			o.displayed = min(o.displayed, req.PeakSize, o.quantity)
		}
		o.peakSize = req.PeakSize
	case KindStopLimit:
		if o.status == StatusInactive {
			o.stopPrice = req.StopPrice
		}
	}
}

func (o *Order) isIncoming() bool {
	return o.status == StatusNew || o.status == StatusUpdating || o.status == StatusActive
}

func (o *Order) markQueued() {
	o.status = StatusQueued
	o.Replenish()
}

func (o *Order) markInactive() {
	o.status = StatusInactive
}

func (o *Order) markActive() {
	o.status = StatusActive
	o.triggered = true
}

func (o *Order) markNew() {
	o.status = StatusNew
}

func (o *Order) markUpdating() {
	o.status = StatusUpdating
}

func (o *Order) trigger() {
	o.triggered = true
}

// restore copies the mutable state captured in snap back into o
func (o *Order) restore(snap *Order) {
	o.price = snap.price
	o.quantity = snap.quantity
	o.originalQty = snap.originalQty
	o.executedQty = snap.executedQty
	o.displayed = snap.displayed
	o.peakSize = snap.peakSize
	o.stopPrice = snap.stopPrice
	o.triggered = snap.triggered
	o.seq = snap.seq
}

// restoreQuantity rewinds the remaining quantity of an order that was
// being matched, leaving its execution count alone
func (o *Order) restoreQuantity(snap *Order) {
	o.quantity = snap.quantity
	o.displayed = snap.displayed
}

// origin returns the live order behind a snapshot
func (o *Order) origin() *Order {
	if o.live != nil {
		return o.live
	}
	return o
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	type OrderJSON struct {
		ID                       int64     `json:"id"`
		Security                 string    `json:"security,omitempty"`
		Kind                     string    `json:"kind"`
		Side                     Side      `json:"side"`
		Price                    int64     `json:"price"`
		Quantity                 int64     `json:"quantity"`
		DisplayedQuantity        int64     `json:"displayedQuantity"`
		OriginalQuantity         int64     `json:"originalQuantity"`
		MinimumExecutionQuantity int64     `json:"minimumExecutionQuantity,omitempty"`
		PeakSize                 int64     `json:"peakSize,omitempty"`
		StopPrice                int64     `json:"stopPrice,omitempty"`
		Status                   string    `json:"status"`
		BrokerID                 int64     `json:"brokerId"`
		ShareholderID            int64     `json:"shareholderId"`
		EntryTime                time.Time `json:"entryTime"`
	}

	out := OrderJSON{
		ID:                       o.id,
		Kind:                     o.kind.String(),
		Side:                     o.side,
		Price:                    o.price,
		Quantity:                 o.quantity,
		DisplayedQuantity:        o.Quantity(),
		OriginalQuantity:         o.originalQty,
		MinimumExecutionQuantity: o.minExecQty,
		PeakSize:                 o.peakSize,
		StopPrice:                o.stopPrice,
		Status:                   o.status.String(),
		EntryTime:                o.entryTime,
	}
	if o.security != nil {
		out.Security = o.security.ISIN()
	}
	if o.broker != nil {
		out.BrokerID = o.broker.ID()
	}
	if o.shareholder != nil {
		out.ShareholderID = o.shareholder.ID()
	}
	return json.Marshal(out)
}

// String implements fmt.Stringer
func (o *Order) String() string {
	return fmt.Sprintf("%s %s #%d %d@%d (%s)", o.kind, o.side, o.id, o.Quantity(), o.price, o.status)
}
