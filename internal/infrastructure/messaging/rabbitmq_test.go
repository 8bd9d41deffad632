package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sangkips/tablesync-api/internal/application/notifier"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, msg)
	return args.Error(0)
}

func (m *mockChannel) IsClosed() bool {
	return m.Called().Bool(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) IsClosed() bool { return c.closed.Load() }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeBroker hands out the given channels one dial at a time. When block is set
// every dial waits for it to be closed.
type fakeBroker struct {
	mu       sync.Mutex
	channels []channel
	conns    []*fakeConn
	dials    int
	block    chan struct{}
}

func (b *fakeBroker) dial() (connection, channel, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dials > len(b.channels) {
		return nil, nil, errors.New("dial failed")
	}
	conn := &fakeConn{}
	b.conns = append(b.conns, conn)
	return conn, b.channels[b.dials-1], nil
}

func (b *fakeBroker) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.conns) {
		return nil
	}
	return b.conns[i]
}

// newTestPublisher connects up front the way NewPublisher does
func newTestPublisher(t *testing.T, broker *fakeBroker, queueSize int) *Publisher {
	t.Helper()
	p := newPublisher(DefaultExchange, zap.NewNop(), broker.dial, queueSize)
	require.NoError(t, p.reconnect())
	p.start()
	return p
}

// sentSignal returns a channel closed by the mocked publish
func sentSignal(call *mock.Call) chan struct{} {
	sent := make(chan struct{})
	call.Run(func(mock.Arguments) { close(sent) })
	return sent
}

func waitSent(t *testing.T, sent chan struct{}) {
	t.Helper()
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not published")
	}
}

func testSnapshot() entity.OrderAggregate {
	return entity.OrderAggregate{
		Order: entity.Order{
			ID:            uuid.New(),
			PartnerID:     uuid.New(),
			Type:          enum.OrderTypePOS,
			Status:        enum.OrderStatusAccepted,
			StatusHistory: []entity.StatusEntry{{Status: enum.OrderStatusPending}, {Status: enum.OrderStatusAccepted}},
		},
		Currency: "INR",
	}
}

func TestPublisher_Publish(t *testing.T) {
	ch := new(mockChannel)
	snap := testSnapshot()

	ch.On("IsClosed").Return(false)
	ch.On("Close").Return(nil)
	sent := sentSignal(ch.On("PublishWithContext", DefaultExchange, snap.PartnerID.String(), mock.MatchedBy(func(msg amqp.Publishing) bool {
		var body SnapshotMessage
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return false
		}
		return msg.ContentType == "application/json" &&
			msg.MessageId == snap.ID.String()+":2" &&
			body.OrderID == snap.ID.String() &&
			body.Status == "accepted"
	})).Return(nil).Once())

	p := newTestPublisher(t, &fakeBroker{channels: []channel{ch}}, 8)
	require.NoError(t, p.Publish(context.Background(), snap))
	waitSent(t, sent)
	require.NoError(t, p.Close())
	ch.AssertExpectations(t)
}

func TestPublisher_ReconnectsClosedChannel(t *testing.T) {
	dead := new(mockChannel)
	dead.On("IsClosed").Return(true)
	fresh := new(mockChannel)
	fresh.On("IsClosed").Return(false)
	fresh.On("Close").Return(nil)
	sent := sentSignal(fresh.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once())

	broker := &fakeBroker{channels: []channel{dead, fresh}}
	p := newTestPublisher(t, broker, 8)
	require.NoError(t, p.Publish(context.Background(), testSnapshot()))
	waitSent(t, sent)

	// the connection behind the dead channel is released before redialing
	assert.True(t, broker.conn(0).IsClosed())
	assert.False(t, broker.conn(1).IsClosed())

	require.NoError(t, p.Close())
	assert.True(t, broker.conn(1).IsClosed())
	fresh.AssertExpectations(t)
	dead.AssertNotCalled(t, "Close")
}

func TestPublisher_BlockedDialDoesNotStallCallers(t *testing.T) {
	dead := new(mockChannel)
	dead.On("IsClosed").Return(true)

	broker := &fakeBroker{channels: []channel{dead}}
	p := newTestPublisher(t, broker, 1)
	broker.mu.Lock()
	broker.block = make(chan struct{})
	broker.mu.Unlock()

	orders := memory.NewOrderRepository()
	hub := notifier.NewHub(orders, memory.NewPartnerRepository(), notifier.WithPublisher(p))
	defer hub.Shutdown(context.Background())

	tests := []struct {
		name    string
		publish func() error
	}{
		{
			name:    "publish",
			publish: func() error { return p.Publish(context.Background(), testSnapshot()) },
		},
		{
			name: "hub broadcast",
			publish: func() error {
				snap := testSnapshot()
				return hub.Broadcast(context.Background(), &snap.Order)
			},
		},
	}

	var queueFull bool
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				start := time.Now()
				err := tt.publish()
				assert.Less(t, time.Since(start), 100*time.Millisecond)
				if errors.Is(err, ErrPublishQueueFull) {
					queueFull = true
				}
			}
		})
	}
	assert.True(t, queueFull)

	close(broker.block)
	require.NoError(t, p.Close())
}

func TestPublisher_BacksOffAfterFailedDial(t *testing.T) {
	dead := new(mockChannel)
	dead.On("IsClosed").Return(true)

	broker := &fakeBroker{channels: []channel{dead}}
	p := newTestPublisher(t, broker, 8)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(context.Background(), testSnapshot()))
	}
	dials := func() int {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return broker.dials
	}
	// one dial at startup and one redial; the rest fall inside the backoff window
	assert.Eventually(t, func() bool {
		return dials() == 2 && len(p.queue) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Close())
	assert.Equal(t, 2, dials())
}

func TestPublisher_Closed(t *testing.T) {
	ch := new(mockChannel)
	ch.On("IsClosed").Return(false)
	ch.On("Close").Return(nil).Once()

	broker := &fakeBroker{channels: []channel{ch}}
	p := newTestPublisher(t, broker, 8)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(context.Background(), testSnapshot()), ErrPublisherClosed)
	assert.True(t, broker.conn(0).IsClosed())
	ch.AssertExpectations(t)
}

func TestEncodeSnapshot(t *testing.T) {
	snap := testSnapshot()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	body, err := encodeSnapshot(snap, now)
	require.NoError(t, err)

	var msg SnapshotMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, snap.PartnerID.String(), msg.PartnerID)
	assert.Equal(t, now, msg.PublishedAt)
	assert.Equal(t, "INR", msg.Snapshot.Currency)
}
