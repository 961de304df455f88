// Package redis implements fanout.Broker on top of Redis Pub/Sub so that
// several server processes sharing one database deliver updates to each
// other's subscribers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

const defaultPrefix = "fitroom:"

// Broker publishes room snapshots as JSON on one channel per room.
type Broker struct {
	client *goredis.Client
	prefix string
	log    *zerolog.Logger

	mu     sync.Mutex
	subs   map[*goredis.PubSub]struct{}
	closed bool
}

// New wraps an existing client. keyPrefix defaults to "fitroom:".
func New(client *goredis.Client, keyPrefix string, logger *zerolog.Logger) *Broker {
	if client == nil {
		panic("redis client cannot be nil for fanout broker")
	}
	if keyPrefix == "" {
		keyPrefix = defaultPrefix
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broker{
		client: client,
		prefix: keyPrefix,
		log:    logger,
		subs:   make(map[*goredis.PubSub]struct{}),
	}
}

func (b *Broker) channel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:updates", b.prefix, roomID)
}

// Publish sends room to the room channel.
func (b *Broker) Publish(ctx context.Context, room *store.Room) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fanout.ErrClosed
	}

	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: marshal room %s: %w", room.ID, err)
	}
	if err := b.client.Publish(ctx, b.channel(room.ID), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish room %s: %w", room.ID, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning, so a
// Publish issued after Subscribe returns is guaranteed to be delivered.
func (b *Broker) Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fanout.ErrClosed
	}
	b.mu.Unlock()

	channel := b.channel(roomID)
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, fanout.ErrClosed
	}
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	messages := ps.Channel()
	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var room store.Room
				if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
					b.log.Warn().Err(err).Str("channel", channel).Msg("drop malformed room update")
					continue
				}
				select {
				case <-done:
					return
				default:
				}
				fn(&room)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			if err := ps.Close(); err != nil {
				b.log.Debug().Err(err).Str("channel", channel).Msg("close pubsub")
			}
		})
	}, nil
}

// Close closes every open subscription. The client is owned by the caller.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*goredis.PubSub]struct{})
	b.mu.Unlock()

	for ps := range subs {
		_ = ps.Close()
	}
	return nil
}

var _ fanout.Broker = (*Broker)(nil)
