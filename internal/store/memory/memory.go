// Package memory is an in-process store.Store used by tests and single-node
// development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

// MemoryStore keeps rooms in a map guarded by a single mutex. Every mutation is
// applied and published as one step, which gives it the same conditional-write
// semantics as the SQL store.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]*store.Room
	broker fanout.Broker
	now    func() time.Time
}

// New creates an empty store. A nil broker gets a private fanout.Local.
func New(broker fanout.Broker) *MemoryStore {
	if broker == nil {
		broker = fanout.NewLocal()
	}
	return &MemoryStore{
		rooms:  make(map[string]*store.Room),
		broker: broker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the broker.
func (s *MemoryStore) Close() error {
	return s.broker.Close()
}

// CreateRoom persists a copy of room.
func (s *MemoryStore) CreateRoom(_ context.Context, room *store.Room) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rooms {
		if existing.Status.Live() && existing.Code == room.Code {
			return nil, store.ErrConflict
		}
		if room.IdempotencyKey != "" &&
			existing.CreatorID == room.CreatorID &&
			existing.IdempotencyKey == room.IdempotencyKey {
			return nil, store.ErrConflict
		}
	}

	created := room.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if _, exists := s.rooms[created.ID]; exists {
		return nil, store.ErrConflict
	}
	now := s.now()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now
	created.Version = 1
	if created.Status == "" {
		created.Status = store.RoomStatusActive
	}
	if created.Participants == nil {
		created.Participants = []store.Participant{}
	}

	s.rooms[created.ID] = created
	return created.Clone(), nil
}

// GetRoom retrieves a room by ID.
func (s *MemoryStore) GetRoom(_ context.Context, id string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return room.Clone(), nil
}

// FindActiveByCode retrieves the live room owning code.
func (s *MemoryStore) FindActiveByCode(_ context.Context, code string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, room := range s.rooms {
		if room.Code == code && room.Status.Live() {
			return room.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// FindByIdempotencyKey retrieves a room by creator and idempotency key.
func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, creatorID, key string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		return nil, store.ErrNotFound
	}
	for _, room := range s.rooms {
		if room.CreatorID == creatorID && room.IdempotencyKey == key {
			return room.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// AppendParticipant appends p if the roster holds fewer than maxCount entries.
func (s *MemoryStore) AppendParticipant(ctx context.Context, roomID string, p store.Participant, maxCount int) (*store.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok || !room.Status.Live() {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if room.HasParticipant(p.UserID) {
		snapshot := room.Clone()
		s.mu.Unlock()
		return snapshot, nil
	}
	if len(room.Participants) >= maxCount || len(room.Participants) >= room.Capacity {
		s.mu.Unlock()
		return nil, store.ErrCapacity
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}
	room.Participants = append(room.Participants, p)
	s.touch(room)
	snapshot := room.Clone()
	s.publish(ctx, snapshot)
	s.mu.Unlock()

	return snapshot, nil
}

// UpdateRoom applies patch atomically.
func (s *MemoryStore) UpdateRoom(ctx context.Context, roomID string, patch store.Patch) (*store.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}

	next := room.Clone()
	if err := patch.Apply(next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.touch(next)
	s.rooms[roomID] = next
	snapshot := next.Clone()
	s.publish(ctx, snapshot)
	s.mu.Unlock()

	return snapshot, nil
}

// Subscribe registers fn with the broker.
func (s *MemoryStore) Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error) {
	return s.broker.Subscribe(ctx, roomID, fn)
}

func (s *MemoryStore) touch(room *store.Room) {
	room.Version++
	room.UpdatedAt = s.now()
}

// publish runs under s.mu so subscribers observe commit order. The mutation is
// already committed, so a failed publish is not reported to the writer.
func (s *MemoryStore) publish(ctx context.Context, room *store.Room) {
	_ = s.broker.Publish(ctx, room)
}

var _ store.Store = (*MemoryStore)(nil)
