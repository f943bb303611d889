package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RequestHandler processes one decoded request
type RequestHandler func(ctx context.Context, req *messaging.Request) error

// RequestConsumer feeds requests from a Kafka topic into a handler. Each
// message is committed once the handler returns, whatever the result, so
// a malformed request is logged and skipped rather than retried forever.
type RequestConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

// NewRequestConsumer creates a consumer in group reading topic
func NewRequestConsumer(brokers []string, topic, groupID string, logger zerolog.Logger) *RequestConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newRequestConsumer(reader, logger)
}

func newRequestConsumer(reader messageReader, logger zerolog.Logger) *RequestConsumer {
	return &RequestConsumer{reader: reader, logger: logger.With().Str("component", "kafka_consumer").Logger()}
}

// Run consumes until ctx is cancelled or the reader fails
func (c *RequestConsumer) Run(ctx context.Context, handle RequestHandler) error {
	c.logger.Info().Msg("Starting Kafka request consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetching request: %w", err)
		}

		logger := c.logger.With().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Logger()

		var req messaging.Request
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			logger.Error().Err(err).Msg("Dropping undecodable request")
		} else if err := req.Validate(); err != nil {
			logger.Error().Err(err).Msg("Dropping malformed request")
		} else if err := handle(logger.WithContext(ctx), &req); err != nil {
			logger.Warn().Err(err).Str("request_type", string(req.Type)).Msg("Request failed")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing offset %d: %w", msg.Offset, err)
		}
	}
}

// Close closes the underlying reader
func (c *RequestConsumer) Close() error {
	return c.reader.Close()
}
