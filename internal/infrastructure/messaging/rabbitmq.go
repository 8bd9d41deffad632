// Package messaging forwards order snapshots to RabbitMQ so that processes
// outside the API (kitchen displays, analytics) can follow orders.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	// DefaultExchange is the fanout exchange snapshots are published to
	DefaultExchange = "order_snapshots_fanout"

	defaultQueueSize = 1024
	publishTimeout   = 5 * time.Second
	dialTimeout      = 5 * time.Second
	heartbeat        = 10 * time.Second
	minRedialDelay   = 500 * time.Millisecond
	maxRedialDelay   = 30 * time.Second
)

var (
	// ErrPublisherClosed is returned by Publish after Close
	ErrPublisherClosed = errors.New("messaging: publisher is closed")
	// ErrPublishQueueFull is returned when snapshots arrive faster than the broker takes them
	ErrPublishQueueFull = errors.New("messaging: publish queue is full")
)

// channel is the subset of *amqp.Channel the publisher needs
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// connection is the subset of *amqp.Connection the publisher needs
type connection interface {
	IsClosed() bool
	Close() error
}

// dialer opens a connection and a channel with the exchange declared
type dialer func() (connection, channel, error)

// SnapshotMessage is the body published for every order change
type SnapshotMessage struct {
	OrderID     string                `json:"order_id"`
	PartnerID   string                `json:"partner_id"`
	Status      string                `json:"status"`
	PublishedAt time.Time             `json:"published_at"`
	Snapshot    entity.OrderAggregate `json:"snapshot"`
}

type outgoing struct {
	routingKey string
	messageID  string
	body       []byte
}

// Publisher publishes order snapshots to a fanout exchange. Publish only queues
// the message; a single goroutine owns the connection, sends in order and redials
// with backoff, so a broker outage never stalls the caller.
type Publisher struct {
	exchange string
	logger   *zap.Logger
	dial     dialer

	queue     chan outgoing
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// owned by run once started
	conn        connection
	ch          channel
	redialDelay time.Duration
	nextDial    time.Time
}

// NewPublisher connects to RabbitMQ and declares the fanout exchange
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := newPublisher(exchange, logger, func() (connection, channel, error) {
		return connect(url, exchange)
	}, defaultQueueSize)

	if err := p.reconnect(); err != nil {
		return nil, err
	}
	p.start()
	return p, nil
}

func newPublisher(exchange string, logger *zap.Logger, dial dialer, queueSize int) *Publisher {
	return &Publisher{
		exchange: exchange,
		logger:   logger,
		dial:     dial,
		queue:    make(chan outgoing, queueSize),
		done:     make(chan struct{}),
	}
}

func connect(url, exchange string) (connection, channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

func (p *Publisher) start() {
	p.wg.Add(1)
	go p.run()
}

// Publish queues the snapshot for the exchange without waiting for the broker
func (p *Publisher) Publish(_ context.Context, snapshot entity.OrderAggregate) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}

	body, err := encodeSnapshot(snapshot, time.Now())
	if err != nil {
		return err
	}
	msg := outgoing{
		routingKey: snapshot.PartnerID.String(),
		messageID:  fmt.Sprintf("%s:%d", snapshot.ID, len(snapshot.StatusHistory)),
		body:       body,
	}

	select {
	case p.queue <- msg:
		return nil
	case <-p.done:
		return ErrPublisherClosed
	default:
		return ErrPublishQueueFull
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.flush()
			return
		case msg := <-p.queue:
			if !p.ensureChannel() {
				p.logger.Warn("dropping order snapshot, rabbitmq unavailable",
					zap.String("message_id", msg.messageID),
				)
				continue
			}
			p.send(msg)
		}
	}
}

// flush sends what is still queued at shutdown, without redialing
func (p *Publisher) flush() {
	for {
		select {
		case msg := <-p.queue:
			if p.ch == nil || p.ch.IsClosed() {
				return
			}
			p.send(msg)
		default:
			return
		}
	}
}

func (p *Publisher) send(msg outgoing) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx, p.exchange, msg.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.messageID,
		Timestamp:    time.Now(),
		Type:         "order.snapshot",
		Body:         msg.body,
	})
	if err != nil {
		p.logger.Warn("failed to publish order snapshot",
			zap.String("message_id", msg.messageID),
			zap.Error(err),
		)
	}
}

// ensureChannel redials a lost channel, backing off between failed attempts
func (p *Publisher) ensureChannel() bool {
	if p.ch != nil && !p.ch.IsClosed() {
		return true
	}
	if time.Now().Before(p.nextDial) {
		return false
	}

	p.logger.Warn("rabbitmq channel closed, reconnecting", zap.String("exchange", p.exchange))
	if err := p.reconnect(); err != nil {
		p.redialDelay = min(max(2*p.redialDelay, minRedialDelay), maxRedialDelay)
		p.nextDial = time.Now().Add(p.redialDelay)
		p.logger.Warn("rabbitmq reconnect failed",
			zap.Duration("retry_in", p.redialDelay),
			zap.Error(err),
		)
		return false
	}
	p.redialDelay = 0
	p.nextDial = time.Time{}
	return true
}

// reconnect releases the current connection before dialing a new one. It must
// only be called from run, or before start.
func (p *Publisher) reconnect() error {
	if err := p.release(); err != nil {
		p.logger.Debug("failed to close stale rabbitmq connection", zap.Error(err))
	}
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *Publisher) release() error {
	ch, conn := p.ch, p.conn
	p.ch, p.conn = nil, nil

	if ch != nil && !ch.IsClosed() {
		if err := ch.Close(); err != nil {
			if conn != nil && !conn.IsClosed() {
				conn.Close()
			}
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

func encodeSnapshot(snapshot entity.OrderAggregate, now time.Time) ([]byte, error) {
	body, err := json.Marshal(SnapshotMessage{
		OrderID:     snapshot.ID.String(),
		PartnerID:   snapshot.PartnerID.String(),
		Status:      snapshot.Status.String(),
		PublishedAt: now.UTC(),
		Snapshot:    snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return body, nil
}

// Close stops the publisher after sending what is queued, then closes the
// channel and the connection
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.release()
	})
	return err
}
