package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestChannelBus_DeliversInOrder(t *testing.T) {
	bus := NewChannelBus(10, zaptest.NewLogger(t))

	var mu sync.Mutex
	var got []EventType
	bus.Start(context.Background(), func(ctx context.Context, e Event) error {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		return nil
	})

	bus.Publish(New(VoucherIssued, time.Now()))
	bus.Publish(New(VoucherRedeemed, time.Now()))
	bus.Publish(New(ReimbursementCreated, time.Now()))
	bus.Close()

	assert.Equal(t, []EventType{VoucherIssued, VoucherRedeemed, ReimbursementCreated}, got)
}

func TestChannelBus_FullQueueDrops(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	bus := NewChannelBus(1, zap.New(core))

	bus.Publish(New(VoucherIssued, time.Now()))
	bus.Publish(New(VoucherIssued, time.Now()))

	assert.Equal(t, 1, len(bus.events))
	assert.Equal(t, 1, recorded.FilterMessage("event bus queue full, dropping event").Len())
}

func TestChannelBus_PublishAfterClose(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	bus := NewChannelBus(1, zap.New(core))
	bus.Close()

	bus.Publish(New(VoucherIssued, time.Now()))

	assert.Equal(t, 0, len(bus.events))
	assert.Equal(t, 1, recorded.FilterMessage("event bus closed, dropping event").Len())
}

func TestChannelBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	bus := NewChannelBus(10, zap.New(core))

	var mu sync.Mutex
	handled := 0
	bus.Start(context.Background(), func(ctx context.Context, e Event) error {
		mu.Lock()
		handled++
		mu.Unlock()
		switch e.Type {
		case VoucherIssued:
			return errors.New("webhook down")
		case VoucherExpiring:
			panic("bad payload")
		}
		return nil
	})

	bus.Publish(New(VoucherIssued, time.Now()))
	bus.Publish(New(VoucherExpiring, time.Now()))
	bus.Publish(New(VoucherRedeemed, time.Now()))
	bus.Close()

	assert.Equal(t, 3, handled)
	assert.Equal(t, 1, recorded.FilterMessage("Failed to handle event").Len())
	assert.Equal(t, 1, recorded.FilterMessage("event handler panicked").Len())
}
