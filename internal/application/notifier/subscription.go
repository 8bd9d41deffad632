package notifier

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
)

type mailboxEntry struct {
	orderID  uuid.UUID
	err      error
	terminal bool
}

// Subscription is a live registration on the hub. Snapshots for the same order
// that queue up while the viewer is busy are coalesced into the latest one.
//
// Close must not be called from inside onSnapshot or onError; it waits for the
// running callback to return.
type Subscription struct {
	id         uint64
	hub        *Hub
	filter     Filter
	onSnapshot func(entity.OrderAggregate)
	onError    func(error)

	mu      sync.Mutex
	queue   []mailboxEntry
	pending map[uuid.UUID]entity.OrderAggregate
	// version is the history length of the newest snapshot queued or delivered per
	// order. Entries are dropped once a completed or cancelled snapshot is delivered.
	version map[uuid.UUID]int
	closed  bool

	wake chan struct{}
	done chan struct{}

	// deliver is held while a callback runs
	deliver   sync.Mutex
	closeOnce sync.Once
	stopCtx   func() bool // guarded by mu
}

func newSubscription(h *Hub, id uint64, filter Filter, onSnapshot func(entity.OrderAggregate), onError func(error)) *Subscription {
	return &Subscription{
		id:         id,
		hub:        h,
		filter:     filter,
		onSnapshot: onSnapshot,
		onError:    onError,
		pending:    make(map[uuid.UUID]entity.OrderAggregate),
		version:    make(map[uuid.UUID]int),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Filter returns the filter the subscription was created with
func (s *Subscription) Filter() Filter {
	return s.filter
}

// Done is closed once Close has been called
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription. It is idempotent, and once it returns
// neither callback will be invoked again.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.pending = nil
		stop := s.stopCtx
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		s.hub.remove(s.id)
		close(s.done)

		// wait out a callback that was already running
		s.deliver.Lock()
		s.deliver.Unlock()
	})
}

func (s *Subscription) enqueueSnapshot(snapshot entity.OrderAggregate) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	id := snapshot.ID
	v := len(snapshot.StatusHistory)
	if v < s.version[id] {
		s.mu.Unlock()
		return
	}
	s.version[id] = v

	if _, queued := s.pending[id]; !queued {
		if len(s.pending) >= s.hub.mailboxSize {
			s.mu.Unlock()
			s.enqueueError(ErrSlowConsumer, true)
			return
		}
		s.queue = append(s.queue, mailboxEntry{orderID: id})
	}
	s.pending[id] = snapshot
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription) enqueueError(err error, terminal bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, mailboxEntry{err: err, terminal: terminal})
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			entry, snapshot, ok := s.next()
			if !ok {
				break
			}
			if !s.dispatch(entry, snapshot) {
				return
			}
		}
	}
}

func (s *Subscription) next() (mailboxEntry, entity.OrderAggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		return mailboxEntry{}, entity.OrderAggregate{}, false
	}

	entry := s.queue[0]
	s.queue = s.queue[1:]
	if entry.err != nil {
		return entry, entity.OrderAggregate{}, true
	}

	snapshot := s.pending[entry.orderID]
	delete(s.pending, entry.orderID)
	return entry, snapshot, true
}

// dispatch runs one callback and reports whether the loop should continue
func (s *Subscription) dispatch(entry mailboxEntry, snapshot entity.OrderAggregate) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}

	if entry.err == nil {
		s.onSnapshot(snapshot)
		if settled(snapshot.Status) {
			s.forget(snapshot.ID, len(snapshot.StatusHistory))
		}
		return true
	}

	if s.onError != nil {
		s.onError(entry.err)
	}
	if entry.terminal {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.pending = nil
		s.mu.Unlock()
		s.hub.remove(s.id)
		return false
	}
	return true
}

// settled orders only change again through a late cancellation, whose snapshot
// carries a longer history and is delivered regardless
func settled(status enum.OrderStatus) bool {
	return status == enum.OrderStatusCompleted || status == enum.OrderStatusCancelled
}

// forget drops the version of a delivered settled order unless a newer snapshot is queued
func (s *Subscription) forget(orderID uuid.UUID, delivered int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, queued := s.pending[orderID]; queued {
		return
	}
	if s.version[orderID] == delivered {
		delete(s.version, orderID)
	}
}
