package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaReader is the subset of *kafka.Reader the consumer uses
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer delivers topic messages to a handler. Messages are committed
// after the handler returns, successful or not: delivery is at-most-once
// from the core's point of view and failures are recorded by the handler.
type KafkaConsumer struct {
	reader KafkaReader
	logger *zap.Logger
	done   chan struct{}
}

// NewKafkaConsumer joins groupID on topic
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
			Dialer:  kafka.DefaultDialer,
		}),
		logger: logger.Named("kafka_consumer"),
		done:   make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context, h Handler) {
	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				c.logger.Error("Failed to fetch message", zap.Error(err))
				continue
			}

			var e Event
			if err := json.Unmarshal(msg.Value, &e); err != nil {
				c.logger.Error("Failed to parse event", zap.Error(err), zap.ByteString("value", msg.Value))
			} else if err := h(ctx, e); err != nil {
				c.logger.Warn("Failed to handle event",
					zap.Error(err),
					zap.String("event_type", string(e.Type)),
					zap.String("event_id", e.ID),
				)
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Error("Failed to commit message", zap.Error(err))
			}
		}
	}()
}

// Close stops reading
func (c *KafkaConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}

// KafkaBus pairs the producer and consumer so both transports share the Bus interface
type KafkaBus struct {
	*KafkaProducer
	consumer *KafkaConsumer
}

// NewKafkaBus builds a producer and a consumer on the same topic
func NewKafkaBus(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaBus {
	return &KafkaBus{
		KafkaProducer: NewKafkaProducer(brokers, topic, logger),
		consumer:      NewKafkaConsumer(brokers, topic, groupID, logger),
	}
}

// Start runs the consumer side
func (b *KafkaBus) Start(ctx context.Context, h Handler) {
	b.consumer.Start(ctx, h)
}

// Close stops the producer first so buffered events are flushed
func (b *KafkaBus) Close() {
	b.KafkaProducer.Close()
	b.consumer.Close()
}
