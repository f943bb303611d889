package core

import (
	"github.com/nikolaydubina/fpdecimal"
)

// Broker owns the credit that buy orders draw on
type Broker struct {
	id     int64
	name   string
	credit fpdecimal.Decimal
}

// NewBroker creates a broker with an initial credit
func NewBroker(id int64, name string, credit fpdecimal.Decimal) *Broker {
	return &Broker{id: id, name: name, credit: credit}
}

// ID returns the broker id
func (b *Broker) ID() int64 {
	return b.id
}

// Name returns the broker name
func (b *Broker) Name() string {
	return b.name
}

// Credit returns the available credit
func (b *Broker) Credit() fpdecimal.Decimal {
	return b.credit
}

// HasEnoughCredit reports whether amount can be drawn
func (b *Broker) HasEnoughCredit(amount fpdecimal.Decimal) bool {
	return b.credit.GreaterThanOrEqual(amount)
}

// IncreaseCreditBy adds amount to the available credit
func (b *Broker) IncreaseCreditBy(amount fpdecimal.Decimal) {
	b.credit = b.credit.Add(amount)
}

// DecreaseCreditBy removes amount from the available credit
func (b *Broker) DecreaseCreditBy(amount fpdecimal.Decimal) {
	b.credit = b.credit.Sub(amount)
}
