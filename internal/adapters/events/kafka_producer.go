package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

// KafkaWriter is the subset of *kafka.Writer the producer uses
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer buffers events and writes them from a single goroutine.
// A full buffer drops the event with a warning.
type KafkaProducer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
}

// NewKafkaProducer creates the topic when possible and starts the send loop
func NewKafkaProducer(brokers []string, topic string, logger *zap.Logger) *KafkaProducer {
	logger = logger.Named("kafka_producer")
	ensureTopic(brokers, topic, logger)

	return newKafkaProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}, logger, 1000)
}

func newKafkaProducer(w KafkaWriter, logger *zap.Logger, buffer int) *KafkaProducer {
	p := &KafkaProducer{
		writer:    w,
		events:    make(chan Event, buffer),
		logger:    logger,
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.eventLoop()
	return p
}

func ensureTopic(brokers []string, topic string, logger *zap.Logger) {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		logger.Warn("kafka dial failed, topic not ensured", zap.Error(err))
		return
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}
}

// Publish never blocks
func (p *KafkaProducer) Publish(e Event) {
	select {
	case p.events <- e:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
		)
	}
}

func (p *KafkaProducer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case e := <-p.events:
			p.sendEvent(context.Background(), e)
		case <-p.closeChan:
			// flush what is already buffered
			for {
				select {
				case e := <-p.events:
					p.sendEvent(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaProducer) sendEvent(ctx context.Context, e Event) {
	value, err := jsonMarshal(e)
	if err != nil {
		p.logger.Error("Failed to serialize event", zap.Error(err), zap.String("event_id", e.ID))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
		)
	}
}

// Close stops the loop after flushing and closes the writer
func (p *KafkaProducer) Close() {
	close(p.closeChan)
	<-p.done
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
