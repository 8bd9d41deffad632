// Package notifier pushes full order snapshots to every open viewer of an order
// or of a partner's order board.
package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/application/aggregate"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/pagination"
	"go.uber.org/zap"
)

const (
	defaultMailboxSize = 256
	// recentSyncLimit bounds the settled orders sent to a dashboard on subscribe
	recentSyncLimit = 100
	syncPageSize    = 100
)

// activeStatuses are the statuses a partner board must always show
var activeStatuses = []enum.OrderStatus{enum.OrderStatusPending, enum.OrderStatusAccepted}

var (
	// ErrHubClosed is reported to live subscriptions when the hub shuts down
	ErrHubClosed = errors.New("notifier: hub is shut down")
	// ErrSlowConsumer ends a subscription whose mailbox overflowed; the viewer
	// must resubscribe to get a fresh sync.
	ErrSlowConsumer = errors.New("notifier: subscriber is too slow")
)

// SnapshotPublisher receives every broadcast aggregate, e.g. to forward it to a broker
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot entity.OrderAggregate) error
}

// Filter selects the orders a subscription follows. Set exactly one field.
type Filter struct {
	OrderID   uuid.UUID
	PartnerID uuid.UUID
}

// Validate checks that exactly one of OrderID and PartnerID is set
func (f Filter) Validate() error {
	if (f.OrderID == uuid.Nil) == (f.PartnerID == uuid.Nil) {
		return apperror.NewBadRequestError("subscription needs either an order id or a partner id")
	}
	return nil
}

func (f Filter) matches(order *entity.Order) bool {
	if f.OrderID != uuid.Nil {
		return order.ID == f.OrderID
	}
	return order.PartnerID == f.PartnerID
}

// Hub fans order snapshots out to subscriptions
type Hub struct {
	orders    repository.OrderRepository
	partners  repository.PartnerRepository
	publisher SnapshotPublisher
	logger    *zap.Logger

	mailboxSize int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Hub
type Option func(*Hub)

// WithPublisher forwards every broadcast snapshot to p
func WithPublisher(p SnapshotPublisher) Option {
	return func(h *Hub) { h.publisher = p }
}

// WithLogger sets the hub logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMailboxSize bounds the number of distinct orders queued per subscription
func WithMailboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.mailboxSize = n
		}
	}
}

// NewHub creates a new notifier hub
func NewHub(orders repository.OrderRepository, partners repository.PartnerRepository, opts ...Option) *Hub {
	h := &Hub{
		orders:      orders,
		partners:    partners,
		logger:      zap.NewNop(),
		mailboxSize: defaultMailboxSize,
		subs:        make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers callbacks for the orders matched by filter and immediately
// queues one fresh snapshot per matching order. Callbacks run on the
// subscription's own goroutine, one at a time. The subscription is closed when
// ctx is done or Close is called.
//
// A partner subscription is synced with every pending and accepted order, then
// topped up with the newest completed or cancelled ones (at most 100). The whole
// sync is capped at the mailbox size; active orders beyond it are only seen on
// their next change.
func (h *Hub) Subscribe(ctx context.Context, filter Filter, onSnapshot func(entity.OrderAggregate), onError func(error)) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if onSnapshot == nil {
		return nil, errors.New("notifier: onSnapshot callback is required")
	}

	// Register before the initial read so no update committed in between is missed.
	sub, err := h.register(filter, onSnapshot, onError)
	if err != nil {
		return nil, err
	}

	if err := h.initialSync(ctx, sub); err != nil {
		sub.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stopCtx = stop
	sub.mu.Unlock()
	return sub, nil
}

func (h *Hub) register(filter Filter, onSnapshot func(entity.OrderAggregate), onError func(error)) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	sub := newSubscription(h, h.nextID, filter, onSnapshot, onError)
	h.subs[sub.id] = sub

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		sub.run()
	}()

	return sub, nil
}

func (h *Hub) initialSync(ctx context.Context, sub *Subscription) error {
	var orders []entity.Order

	if sub.filter.OrderID != uuid.Nil {
		order, err := h.orders.GetByID(ctx, sub.filter.OrderID)
		if err != nil {
			return apperror.NewExternalServiceError("order store", err)
		}
		if order == nil {
			return apperror.NewNotFoundError("Order")
		}
		orders = append(orders, *order)
	} else {
		list, err := h.partnerSyncOrders(ctx, sub.filter.PartnerID)
		if err != nil {
			return apperror.NewExternalServiceError("order store", err)
		}
		orders = list
	}

	settings := map[uuid.UUID]*entity.PartnerSettings{}
	for i := range orders {
		order := &orders[i]
		s, ok := settings[order.PartnerID]
		if !ok {
			var err error
			s, err = h.loadSettings(ctx, order.PartnerID)
			if err != nil {
				return apperror.NewExternalServiceError("partner store", err)
			}
			settings[order.PartnerID] = s
		}
		sub.enqueueSnapshot(aggregate.Assemble(order, s))
	}
	return nil
}

// partnerSyncOrders pages through the partner's active orders, then adds the newest
// settled ones. The result never exceeds the mailbox size so the sync itself
// cannot overflow the subscription.
func (h *Hub) partnerSyncOrders(ctx context.Context, partnerID uuid.UUID) ([]entity.Order, error) {
	seen := make(map[uuid.UUID]bool)
	var orders []entity.Order
	add := func(list []entity.Order) {
		for _, o := range list {
			if len(orders) >= h.mailboxSize {
				return
			}
			if !seen[o.ID] {
				seen[o.ID] = true
				orders = append(orders, o)
			}
		}
	}

	for _, status := range activeStatuses {
		for page := 1; len(orders) < h.mailboxSize; page++ {
			list, total, err := h.orders.ListByPartner(ctx, partnerID, &repository.OrderFilterParams{
				Pagination: &pagination.PaginationParams{Page: page, PerPage: syncPageSize},
				Status:     &status,
				SortOrder:  "desc",
			})
			if err != nil {
				return nil, err
			}
			add(list)
			if len(list) == 0 || int64(page*syncPageSize) >= total {
				break
			}
		}
	}

	if len(orders) < h.mailboxSize {
		recent, _, err := h.orders.ListByPartner(ctx, partnerID, &repository.OrderFilterParams{
			Pagination: &pagination.PaginationParams{Page: 1, PerPage: min(recentSyncLimit, h.mailboxSize)},
			SortOrder:  "desc",
		})
		if err != nil {
			return nil, err
		}
		add(recent)
	}
	return orders, nil
}

func (h *Hub) loadSettings(ctx context.Context, partnerID uuid.UUID) (*entity.PartnerSettings, error) {
	partner, err := h.partners.GetByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, nil
	}
	return &partner.Settings, nil
}

// Broadcast assembles a fresh aggregate for order and pushes it to every matching
// subscription without waiting for any of them.
func (h *Hub) Broadcast(ctx context.Context, order *entity.Order) error {
	matching := h.matching(order)
	if matching == nil {
		return ErrHubClosed
	}

	settings, err := h.loadSettings(ctx, order.PartnerID)
	if err != nil {
		h.logger.Warn("failed to load partner settings for snapshot",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		wrapped := apperror.NewExternalServiceError("partner store", err)
		for _, sub := range matching {
			sub.enqueueError(wrapped, false)
		}
		return wrapped
	}

	snapshot := aggregate.Assemble(order, settings)
	for _, sub := range matching {
		sub.enqueueSnapshot(snapshot)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, snapshot); err != nil {
			h.logger.Warn("failed to publish order snapshot",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// matching returns the subscriptions following order, or nil when the hub is closed
func (h *Hub) matching(order *entity.Order) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.filter.matches(order) {
			subs = append(subs, sub)
		}
	}
	return subs
}

// SubscriberCount returns the number of live subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Shutdown reports ErrHubClosed to every live subscription and waits for their
// goroutines to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.enqueueError(ErrHubClosed, true)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
