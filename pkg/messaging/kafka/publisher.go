package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements messaging.EventPublisher on a Kafka topic. Events
// are keyed by security ISIN so each security's events stay ordered.
type Publisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewPublisher creates a publisher writing JSON events to topic
func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(writer, topic)
}

func newPublisher(writer messageWriter, topic string) *Publisher {
	return &Publisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
	}
}

// Publish writes one event
func (p *Publisher) Publish(ctx context.Context, event *messaging.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SecurityISIN),
		Value: data,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send event to Kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ messaging.EventPublisher = (*Publisher)(nil)
