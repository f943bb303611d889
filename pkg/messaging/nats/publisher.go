package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/nats-io/nats.go"
)

// conn is the part of *nats.Conn the publisher needs
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher fans events out on NATS subjects of the form
// <prefix>.<isin>.<event type>, e.g. tinyme.events.ABC.order_executed
type Publisher struct {
	conn   conn
	prefix string
}

// Connect dials url and returns a publisher using subject prefix
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tinyme"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return NewPublisher(nc, prefix), nil
}

// NewPublisher creates a publisher over an established connection
func NewPublisher(nc conn, prefix string) *Publisher {
	return &Publisher{conn: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject event is published on
func (p *Publisher) Subject(event *messaging.Event) string {
	isin := event.SecurityISIN
	if isin == "" {
		isin = "_"
	}
	return fmt.Sprintf("%s.%s.%s", p.prefix, isin, strings.ToLower(string(event.Type)))
}

// Publish sends event as JSON
func (p *Publisher) Publish(_ context.Context, event *messaging.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	if err := p.conn.Publish(p.Subject(event), data); err != nil {
		return fmt.Errorf("publishing to NATS: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

var _ messaging.EventPublisher = (*Publisher)(nil)
