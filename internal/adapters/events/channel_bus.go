package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ChannelBus is the in-process transport used when no brokers are
// configured. Same contract as Kafka: Publish never blocks, a full buffer
// drops the event.
type ChannelBus struct {
	events    chan Event
	logger    *zap.Logger
	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewChannelBus creates a bus with the given buffer size
func NewChannelBus(buffer int, logger *zap.Logger) *ChannelBus {
	return &ChannelBus{
		events:    make(chan Event, buffer),
		logger:    logger.Named("event_bus"),
		closeChan: make(chan struct{}),
	}
}

func (b *ChannelBus) Publish(e Event) {
	select {
	case <-b.closeChan:
		b.logger.Warn("event bus closed, dropping event", zap.String("event_type", string(e.Type)))
		return
	default:
	}

	select {
	case b.events <- e:
	default:
		b.logger.Warn("event bus queue full, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
		)
	}
}

// Start runs one consumer goroutine until ctx ends or Close is called
func (b *ChannelBus) Start(ctx context.Context, h Handler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case e := <-b.events:
				b.dispatch(ctx, h, e)
			case <-ctx.Done():
				return
			case <-b.closeChan:
				for {
					select {
					case e := <-b.events:
						b.dispatch(ctx, h, e)
					default:
						return
					}
				}
			}
		}
	}()
}

func (b *ChannelBus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.Any("panic", r), zap.String("event_type", string(e.Type)))
		}
	}()
	if err := h(ctx, e); err != nil {
		b.logger.Warn("Failed to handle event",
			zap.Error(err),
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
		)
	}
}

// Close drains buffered events and waits for the consumer
func (b *ChannelBus) Close() {
	b.closeOnce.Do(func() { close(b.closeChan) })
	b.wg.Wait()
}
