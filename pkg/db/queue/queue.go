package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erain9/tinyme/pkg/messaging"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultBrokerList = "localhost:9092"
	defaultTopic      = "tinyme-events-pb"
	defaultMaxRetry   = 5
)

// newSyncProducer is swapped out by tests
var newSyncProducer = sarama.NewSyncProducer

// Config configures the protobuf event stream
type Config struct {
	Brokers  []string
	Topic    string
	MaxRetry int
	PoolSize int
}

// DefaultConfig returns a local single-broker configuration
func DefaultConfig() Config {
	return Config{
		Brokers:  []string{defaultBrokerList},
		Topic:    defaultTopic,
		MaxRetry: defaultMaxRetry,
		PoolSize: defaultPoolSize,
	}
}

func (c Config) saramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = c.MaxRetry
	return sc
}

// ProtoPublisher implements messaging.EventPublisher by writing events as
// protobuf-encoded google.protobuf.Struct messages through pooled sarama
// producers
type ProtoPublisher struct {
	topic string
	pool  *ProducerPool
}

// NewProtoPublisher creates a publisher for cfg.Topic
func NewProtoPublisher(cfg Config) *ProtoPublisher {
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	return &ProtoPublisher{
		topic: cfg.Topic,
		pool:  NewProducerPool(cfg),
	}
}

// Publish encodes and sends event, keyed by security ISIN
func (p *ProtoPublisher) Publish(_ context.Context, event *messaging.Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SecurityISIN),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}

	producer, err := p.pool.Get()
	if err != nil {
		return err
	}
	if _, _, err := producer.SendMessage(msg); err != nil {
		// failed producers are dropped, not pooled
		_ = producer.Close()
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}
	p.pool.Put(producer)
	return nil
}

// Close shuts down every pooled producer
func (p *ProtoPublisher) Close() error {
	return p.pool.Close()
}

// EncodeEvent serializes event as a protobuf Struct
func EncodeEvent(event *messaging.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to convert event: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeEvent is the inverse of EncodeEvent
func DecodeEvent(payload []byte) (*messaging.Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	var event messaging.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

var _ messaging.EventPublisher = (*ProtoPublisher)(nil)
