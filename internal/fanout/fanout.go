// Package fanout delivers room snapshots to every subscriber of a room.
package fanout

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/fitroom-server/internal/store"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("broker closed")

// Broker publishes room snapshots and dispatches them to subscribers.
type Broker interface {
	// Publish delivers room to all current subscribers of room.ID.
	Publish(ctx context.Context, room *store.Room) error

	// Subscribe registers fn for snapshots of roomID.
	Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error)

	// Close stops all subscriptions.
	Close() error
}

const queueSize = 16

type subscriber struct {
	fn    func(*store.Room)
	queue chan *store.Room
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case room := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(room)
		case <-s.done:
			return
		}
	}
}

// offer enqueues room without blocking. When the queue is full the oldest
// pending snapshot is dropped; snapshots supersede each other.
func (s *subscriber) offer(room *store.Room) {
	for {
		select {
		case s.queue <- room:
			return
		default:
		}
		select {
		case <-s.queue:
		default:
		}
	}
}

// Local is an in-process broker.
type Local struct {
	mu     sync.RWMutex
	rooms  map[string]map[*subscriber]struct{}
	closed bool
}

// NewLocal constructs an empty in-process broker.
func NewLocal() *Local {
	return &Local{rooms: make(map[string]map[*subscriber]struct{})}
}

// Publish hands each subscriber its own copy of room.
func (b *Local) Publish(_ context.Context, room *store.Room) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for sub := range b.rooms[room.ID] {
		sub.offer(room.Clone())
	}
	return nil
}

// Subscribe starts a dispatch goroutine for fn. Callbacks for one subscription
// run sequentially in publish order.
func (b *Local) Subscribe(_ context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error) {
	sub := &subscriber{
		fn:    fn,
		queue: make(chan *store.Room, queueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := b.rooms[roomID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run()

	return func() {
		b.mu.Lock()
		if subs, ok := b.rooms[roomID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.rooms, roomID)
			}
		}
		b.mu.Unlock()
		sub.stop()
	}, nil
}

// Subscribers returns the number of live subscriptions for roomID.
func (b *Local) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// Close stops every subscription.
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for roomID, subs := range b.rooms {
		for sub := range subs {
			sub.stop()
		}
		delete(b.rooms, roomID)
	}
	return nil
}

var _ Broker = (*Local)(nil)
