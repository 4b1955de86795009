package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type MockKafkaReader struct {
	mock.Mock
}

func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *MockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaReader) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestKafkaConsumer_HandlesAndCommits(t *testing.T) {
	e := redeemedEvent()
	value, err := json.Marshal(e)
	require.NoError(t, err)

	core, recorded := observer.New(zap.ErrorLevel)
	r := new(MockKafkaReader)
	good := kafka.Message{Offset: 1, Value: value}
	bad := kafka.Message{Offset: 2, Value: []byte("{not json")}
	r.On("FetchMessage", mock.Anything).Return(good, nil).Once()
	r.On("FetchMessage", mock.Anything).Return(bad, nil).Once()
	r.On("FetchMessage", mock.Anything).Return(kafka.Message{}, io.EOF)
	r.On("CommitMessages", mock.Anything, mock.Anything).Return(nil)

	c := &KafkaConsumer{reader: r, logger: zap.New(core), done: make(chan struct{})}

	var got []Event
	c.Start(context.Background(), func(ctx context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on EOF")
	}

	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, "VG-ABC123", got[0].VoucherCode)
	r.AssertNumberOfCalls(t, "CommitMessages", 2)
	assert.Equal(t, 1, recorded.FilterMessage("Failed to parse event").Len())
}
