package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live room matches the lookup.
	ErrNotFound = errors.New("room not found")
	// ErrConflict is returned when a write would break a uniqueness rule
	// (live room code, idempotency key) or resurrect an ended room.
	ErrConflict = errors.New("room conflict")
	// ErrCapacity is returned by AppendParticipant when the roster is full at commit time.
	ErrCapacity = errors.New("room is full")
	// ErrVersionMismatch is returned by UpdateRoom when Patch.ExpectedVersion is stale.
	ErrVersionMismatch = errors.New("room version mismatch")
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusActive  RoomStatus = "active"
	RoomStatusRunning RoomStatus = "running"
	RoomStatusEnded   RoomStatus = "ended"
)

// Live reports whether the room still owns its code and accepts joins.
func (s RoomStatus) Live() bool {
	return s == RoomStatusActive || s == RoomStatusRunning
}

// Close reasons recorded on ended rooms.
const (
	ClosedReasonEnd  = "end"
	ClosedReasonExit = "exit"
)

// Participant is one leaderboard row. Order in Room.Participants is join order.
type Participant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Room is a code-addressed workout session.
type Room struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	Capacity       int           `json:"capacity"`
	Activity       string        `json:"activity"`
	CreatorID      string        `json:"creator_id"`
	Participants   []Participant `json:"participants"`
	Status         RoomStatus    `json:"status"`
	ClosedReason   string        `json:"closed_reason,omitempty"`
	Version        int64         `json:"version"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Participants = make([]Participant, len(r.Participants))
	copy(cp.Participants, r.Participants)
	return &cp
}

// ParticipantIndex returns the roster index of userID or -1.
func (r *Room) ParticipantIndex(userID string) int {
	if userID == "" {
		return -1
	}
	for i, p := range r.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// HasParticipant reports whether userID already has a roster entry.
func (r *Room) HasParticipant(userID string) bool {
	return r.ParticipantIndex(userID) >= 0
}

// Full reports whether the roster reached capacity.
func (r *Room) Full() bool {
	return len(r.Participants) >= r.Capacity
}

// Patch describes a partial room update. Nil fields are left unchanged.
type Patch struct {
	Status       *RoomStatus
	ClosedReason *string
	// ClearRoster empties the participant list.
	ClearRoster bool
	// Participants replaces the roster when non-nil.
	Participants []Participant
	// ExpectedVersion turns the update into a compare-and-swap when non-zero.
	ExpectedVersion int64
}

// Apply validates the patch against room and mutates it in place.
// It does not bump the version; stores do that on commit.
func (p Patch) Apply(room *Room) error {
	if p.ExpectedVersion != 0 && p.ExpectedVersion != room.Version {
		return ErrVersionMismatch
	}
	if p.Status != nil {
		if room.Status == RoomStatusEnded && *p.Status != RoomStatusEnded {
			return ErrConflict
		}
		room.Status = *p.Status
	}
	if p.ClosedReason != nil {
		room.ClosedReason = *p.ClosedReason
	}
	if p.ClearRoster {
		room.Participants = []Participant{}
	}
	if p.Participants != nil {
		if len(p.Participants) > room.Capacity {
			return ErrCapacity
		}
		room.Participants = append([]Participant{}, p.Participants...)
	}
	return nil
}

// Unsubscribe detaches a subscription. It is safe to call more than once
// and from inside the subscription callback.
type Unsubscribe func()

// RoomStore is the persistence and change-notification seam of the room protocol.
type RoomStore interface {
	// CreateRoom persists a new room. The store assigns ID, Version and timestamps
	// when they are zero. Returns ErrConflict when the code is taken by a live room.
	CreateRoom(ctx context.Context, room *Room) (*Room, error)

	// GetRoom retrieves a room by ID regardless of status.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// FindActiveByCode retrieves the live room owning code.
	FindActiveByCode(ctx context.Context, code string) (*Room, error)

	// FindByIdempotencyKey retrieves the room a creator created with key.
	FindByIdempotencyKey(ctx context.Context, creatorID, key string) (*Room, error)

	// AppendParticipant atomically appends p when the roster still holds fewer than
	// maxCount entries at commit. A participant whose UserID is already listed is
	// not appended again; the current room is returned unchanged.
	AppendParticipant(ctx context.Context, roomID string, p Participant, maxCount int) (*Room, error)

	// UpdateRoom applies patch atomically and returns the updated room.
	UpdateRoom(ctx context.Context, roomID string, patch Patch) (*Room, error)

	// Subscribe delivers a snapshot after every persisted mutation of the room,
	// including mutations made by other processes sharing the broker.
	Subscribe(ctx context.Context, roomID string, fn func(*Room)) (Unsubscribe, error)
}

// Store aggregates the room store with resource cleanup.
type Store interface {
	RoomStore

	// Close releases underlying resources.
	Close() error
}
