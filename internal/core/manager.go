package core

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/roomcode"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

const (
	// DefaultMaxCapacity matches the largest room size people can pick.
	DefaultMaxCapacity = 9
	// DefaultCodeRetries bounds how many codes CreateRoom tries.
	DefaultCodeRetries = 8

	// casAttempts bounds compare-and-swap retries for roster edits.
	casAttempts = 16
)

// Options tune a Manager. Zero values fall back to the defaults.
type Options struct {
	MaxCapacity int
	CodeRetries int
}

// CreateParams describes a room to open.
type CreateParams struct {
	Capacity  int
	Activity  string
	CreatorID string
	// IdempotencyKey makes a retried create return the first room.
	IdempotencyKey string
}

// Manager enforces room lifecycle rules on top of a RoomStore. It holds no
// room state of its own; concurrent callers are serialized by the store.
type Manager struct {
	store store.RoomStore
	codes roomcode.Generator
	opts  Options
	log   *zerolog.Logger
}

// NewManager wires a manager. A nil generator draws random codes and a nil
// logger discards output.
func NewManager(st store.RoomStore, codes roomcode.Generator, opts Options, logger *zerolog.Logger) *Manager {
	if st == nil {
		panic("room store cannot be nil")
	}
	if codes == nil {
		codes = roomcode.NewGenerator()
	}
	if opts.MaxCapacity <= 0 {
		opts.MaxCapacity = DefaultMaxCapacity
	}
	if opts.CodeRetries <= 0 {
		opts.CodeRetries = DefaultCodeRetries
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{store: st, codes: codes, opts: opts, log: logger}
}

// MaxCapacity reports the configured capacity ceiling.
func (m *Manager) MaxCapacity() int {
	return m.opts.MaxCapacity
}

// CreateRoom opens a room owned by p.CreatorID under a fresh code.
func (m *Manager) CreateRoom(ctx context.Context, p CreateParams) (*store.Room, error) {
	activity := strings.TrimSpace(p.Activity)
	creator := strings.TrimSpace(p.CreatorID)
	key := strings.TrimSpace(p.IdempotencyKey)

	switch {
	case p.Capacity < 1 || p.Capacity > m.opts.MaxCapacity:
		return nil, validationError("capacity must be between 1 and %d", m.opts.MaxCapacity)
	case activity == "":
		return nil, validationError("activity is required")
	case creator == "":
		return nil, validationError("creator is required")
	}

	if key != "" {
		if room, err := m.store.FindByIdempotencyKey(ctx, creator, key); err == nil {
			return room, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, storeError("find by idempotency key", err)
		}
	}

	for attempt := 0; attempt < m.opts.CodeRetries; attempt++ {
		code := m.codes.Generate()

		if _, err := m.store.FindActiveByCode(ctx, code); err == nil {
			m.log.Debug().Str("code", code).Int("attempt", attempt).Msg("room code taken")
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, storeError("find by code", err)
		}

		room, err := m.store.CreateRoom(ctx, &store.Room{
			Code:           code,
			Capacity:       p.Capacity,
			Activity:       activity,
			CreatorID:      creator,
			Status:         store.RoomStatusActive,
			IdempotencyKey: key,
		})
		if err == nil {
			m.log.Info().
				Str("room_id", room.ID).
				Str("code", room.Code).
				Int("capacity", room.Capacity).
				Str("creator", creator).
				Msg("room created")
			return room, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, storeError("create room", err)
		}

		// The conflict may be a concurrent retry of the same request.
		if key != "" {
			if existing, findErr := m.store.FindByIdempotencyKey(ctx, creator, key); findErr == nil {
				return existing, nil
			}
		}
		m.log.Debug().Str("code", code).Int("attempt", attempt).Msg("room code claimed concurrently")
	}

	m.log.Warn().Int("attempts", m.opts.CodeRetries).Msg("no free room code")
	return nil, conflictError("could not allocate a room code, try again")
}

// JoinRoom adds j to the live room owning code. Joining a room the identity
// is already listed in returns the room unchanged.
func (m *Manager) JoinRoom(ctx context.Context, code string, j Joiner, initialScore int) (*store.Room, error) {
	normalized, err := roomcode.Normalize(code)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}
	userID := strings.TrimSpace(j.UserID)
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if initialScore < 0 {
		return nil, validationError("score must not be negative")
	}
	name := strings.TrimSpace(j.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}

	room, err := m.store.FindActiveByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("no active room with this code")
		}
		return nil, storeError("find by code", err)
	}

	joined, err := m.store.AppendParticipant(ctx, room.ID, store.Participant{
		UserID:      userID,
		DisplayName: name,
		Score:       initialScore,
	}, room.Capacity)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCapacity):
			return nil, capacityError()
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError("room has ended")
		default:
			return nil, storeError("append participant", err)
		}
	}

	m.log.Debug().
		Str("room_id", joined.ID).
		Str("user", userID).
		Int("participants", len(joined.Participants)).
		Msg("participant joined")
	return joined, nil
}

// EndRoom closes the room for everyone. Only the creator may end it.
func (m *Manager) EndRoom(ctx context.Context, roomID, requesterID string) (*store.Room, error) {
	return m.closeRoom(ctx, roomID, requesterID, store.ClosedReasonEnd)
}

// ExitRoom is EndRoom issued because the creator walked away.
func (m *Manager) ExitRoom(ctx context.Context, roomID, requesterID string) (*store.Room, error) {
	return m.closeRoom(ctx, roomID, requesterID, store.ClosedReasonExit)
}

func (m *Manager) closeRoom(ctx context.Context, roomID, requesterID, reason string) (*store.Room, error) {
	closedNow := false
	room, err := m.mutate(ctx, roomID, "close room", func(room *store.Room) (*store.Patch, error) {
		if room.CreatorID != requesterID {
			return nil, forbiddenError("only the room creator can close the room")
		}
		if room.Status == store.RoomStatusEnded {
			closedNow = false
			return nil, nil
		}
		closedNow = true
		ended := store.RoomStatusEnded
		return &store.Patch{
			Status:       &ended,
			ClosedReason: &reason,
			ClearRoster:  true,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if closedNow {
		m.log.Info().Str("room_id", roomID).Str("reason", reason).Msg("room closed")
	}
	return room, nil
}

// StartWorkout marks the room running. Starting a running room is a no-op.
func (m *Manager) StartWorkout(ctx context.Context, roomID, requesterID string) (*store.Room, error) {
	return m.mutate(ctx, roomID, "start workout", func(room *store.Room) (*store.Patch, error) {
		if room.CreatorID != requesterID {
			return nil, forbiddenError("only the room creator can start the workout")
		}
		switch room.Status {
		case store.RoomStatusEnded:
			return nil, conflictError("room has ended")
		case store.RoomStatusRunning:
			return nil, nil
		}
		running := store.RoomStatusRunning
		return &store.Patch{Status: &running}, nil
	})
}

// UpdateScore replaces userID's score on the leaderboard.
func (m *Manager) UpdateScore(ctx context.Context, roomID, userID string, score int) (*store.Room, error) {
	if score < 0 {
		return nil, validationError("score must not be negative")
	}
	return m.mutate(ctx, roomID, "update score", func(room *store.Room) (*store.Patch, error) {
		if room.Status == store.RoomStatusEnded {
			return nil, conflictError("room has ended")
		}
		idx := room.ParticipantIndex(userID)
		if idx < 0 {
			return nil, notFoundError("participant not in room")
		}
		if room.Participants[idx].Score == score {
			return nil, nil
		}
		roster := room.Clone().Participants
		roster[idx].Score = score
		return &store.Patch{Participants: roster}, nil
	})
}

// LeaveRoom removes userID from the roster. The creator has to use ExitRoom.
// Leaving a room one is not listed in, or one that has ended, is a no-op.
func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID string) (*store.Room, error) {
	return m.mutate(ctx, roomID, "leave room", func(room *store.Room) (*store.Patch, error) {
		if room.CreatorID == userID {
			return nil, validationError("the creator exits the room instead of leaving it")
		}
		if room.Status == store.RoomStatusEnded {
			return nil, nil
		}
		idx := room.ParticipantIndex(userID)
		if idx < 0 {
			return nil, nil
		}
		roster := make([]store.Participant, 0, len(room.Participants)-1)
		roster = append(roster, room.Participants[:idx]...)
		roster = append(roster, room.Participants[idx+1:]...)
		return &store.Patch{Participants: roster}, nil
	})
}

// GetRoom returns the room regardless of status.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*store.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("room not found")
		}
		return nil, storeError("get room", err)
	}
	return room, nil
}

// FindByCode returns the live room owning code.
func (m *Manager) FindByCode(ctx context.Context, code string) (*store.Room, error) {
	normalized, err := roomcode.Normalize(code)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}
	room, err := m.store.FindActiveByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("no active room with this code")
		}
		return nil, storeError("find by code", err)
	}
	return room, nil
}

// Subscribe forwards to the store so callers only depend on the manager.
func (m *Manager) Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error) {
	unsub, err := m.store.Subscribe(ctx, roomID, fn)
	if err != nil {
		return nil, storeError("subscribe", err)
	}
	return unsub, nil
}

// mutate reads the room, asks build for a patch and applies it as a
// compare-and-swap, retrying when another writer got in first. A nil patch
// means nothing to do and returns the room as read.
func (m *Manager) mutate(ctx context.Context, roomID, op string, build func(*store.Room) (*store.Patch, error)) (*store.Room, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		room, err := m.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		patch, err := build(room)
		if err != nil {
			return nil, err
		}
		if patch == nil {
			return room, nil
		}
		patch.ExpectedVersion = room.Version

		updated, err := m.store.UpdateRoom(ctx, roomID, *patch)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, store.ErrVersionMismatch):
			m.log.Debug().Str("room_id", roomID).Str("op", op).Int("attempt", attempt).Msg("room changed, retrying")
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError("room not found")
		case errors.Is(err, store.ErrConflict):
			return nil, conflictError("room has ended")
		case errors.Is(err, store.ErrCapacity):
			return nil, capacityError()
		default:
			return nil, storeError(op, err)
		}
	}
	return nil, conflictError("room is busy, try again")
}
