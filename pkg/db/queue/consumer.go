package queue

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erain9/tinyme/pkg/messaging"
)

// EventConsumer reads protobuf events back from a topic, e.g. for audit
// trails or replay tooling
type EventConsumer struct {
	consumer sarama.Consumer
	topic    string
	done     chan struct{}
}

// NewEventConsumer connects to the brokers in cfg
func NewEventConsumer(cfg Config) (*EventConsumer, error) {
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	consumer, err := sarama.NewConsumer(cfg.Brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &EventConsumer{consumer: consumer, topic: cfg.Topic, done: make(chan struct{})}, nil
}

// Consume calls handler for every event on partition 0 published after the
// call, until Close. Undecodable messages are skipped.
func (c *EventConsumer) Consume(handler func(*messaging.Event) error) error {
	pc, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer pc.Close()

	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			event, err := DecodeEvent(msg.Value)
			if err != nil {
				continue
			}
			if err := handler(event); err != nil {
				return err
			}
		case cerr, ok := <-pc.Errors():
			if !ok {
				return nil
			}
			return cerr
		case <-c.done:
			return nil
		}
	}
}

// Close stops Consume and closes the consumer
func (c *EventConsumer) Close() error {
	close(c.done)
	return c.consumer.Close()
}
