package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := New(client, "test:", nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBrokerRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan *store.Room, 1)
	unsub, err := b.Subscribe(ctx, "room-1", func(r *store.Room) { got <- r })
	require.NoError(t, err)
	defer unsub()

	sent := &store.Room{
		ID:       "room-1",
		Code:     "7421",
		Capacity: 4,
		Activity: "Squats",
		Status:   store.RoomStatusActive,
		Version:  3,
		Participants: []store.Participant{
			{UserID: "u1", DisplayName: "Alice", Score: 12},
		},
	}
	require.NoError(t, b.Publish(ctx, sent))

	select {
	case r := <-got:
		assert.Equal(t, "7421", r.Code)
		assert.Equal(t, int64(3), r.Version)
		require.Len(t, r.Participants, 1)
		assert.Equal(t, "Alice", r.Participants[0].DisplayName)
		assert.Equal(t, 12, r.Participants[0].Score)
	case <-ctx.Done():
		t.Fatal("room update not delivered")
	}
}

func TestBrokerUsesPerRoomChannels(t *testing.T) {
	b := newTestBroker(t)
	assert.Equal(t, "test:room:abc:updates", b.channel("abc"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan *store.Room, 1)
	unsub, err := b.Subscribe(ctx, "room-1", func(r *store.Room) { got <- r })
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, b.Publish(ctx, &store.Room{ID: "room-2"}))

	select {
	case r := <-got:
		t.Fatalf("unexpected update for %s", r.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBrokerUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	unsub, err := b.Subscribe(ctx, "room-1", func(*store.Room) {})
	require.NoError(t, err)

	unsub()
	unsub()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.subs)
}

func TestBrokerClosed(t *testing.T) {
	b := newTestBroker(t)
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), &store.Room{ID: "room-1"})
	assert.ErrorIs(t, err, fanout.ErrClosed)

	_, err = b.Subscribe(context.Background(), "room-1", func(*store.Room) {})
	assert.ErrorIs(t, err, fanout.ErrClosed)
}
