package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of kafka.Reader used by the consumer
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds order events from a Kafka topic into a Dispatcher
type Consumer struct {
	reader     MessageReader
	dispatcher *Dispatcher
	logger     logger.Logger
	retryDelay time.Duration
}

// NewKafkaReader creates a consumer-group reader for topic
func NewKafkaReader(brokers []string, groupID, topic string) (*kafka.Reader, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	}), nil
}

// NewConsumer creates a consumer
func NewConsumer(reader MessageReader, dispatcher *Dispatcher, log logger.Logger) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{reader: reader, dispatcher: dispatcher, logger: log.With("component", "orders.kafka"), retryDelay: time.Second}
}

// Run consumes until ctx is done. Messages are committed once handled. Malformed
// or rejected messages are logged and committed; internal failures are retried.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch order event: %w", err)
		}

		for !c.handle(ctx, msg) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit order event: %w", err)
		}
	}
}

// handle reports whether msg is done with
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		c.logger.Warn("dropping malformed order event", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		return true
	}

	if _, err := c.dispatcher.Dispatch(ctx, e, ""); err != nil {
		if domain.IsInternal(err) {
			return false
		}
		c.logger.Warn("dropping rejected order event", "order_id", e.OrderID, "error", err)
	}
	return true
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
