package session

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

// ErrStaleResponse is returned when a create or join finished after the
// caller moved on. Whatever the request changed has been rolled back.
var ErrStaleResponse = errors.New("response superseded by a newer request")

// LobbyController is what the pre-join screen needs from the room manager.
type LobbyController interface {
	Controller
	CreateRoom(ctx context.Context, p core.CreateParams) (*store.Room, error)
	JoinRoom(ctx context.Context, code string, j core.Joiner, initialScore int) (*store.Room, error)
	FindByCode(ctx context.Context, code string) (*store.Room, error)
}

// Lobby is the pre-join state of one device. Only the most recent request
// may produce a session.
type Lobby struct {
	ctrl LobbyController
	self core.Identity
	opts Options

	mu  sync.Mutex
	seq uint64
}

// NewLobby creates a lobby acting as self.
func NewLobby(ctrl LobbyController, self core.Identity, opts Options) *Lobby {
	return &Lobby{ctrl: ctrl, self: self, opts: opts.withDefaults()}
}

func (l *Lobby) next() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

func (l *Lobby) current(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq == seq
}

// Cancel abandons any request in flight.
func (l *Lobby) Cancel() {
	l.next()
}

// Create opens a room owned by this device and returns an unattached session.
func (l *Lobby) Create(ctx context.Context, capacity int, activity, idempotencyKey string) (*Session, error) {
	seq := l.next()
	room, err := l.ctrl.CreateRoom(ctx, core.CreateParams{
		Capacity:       capacity,
		Activity:       activity,
		CreatorID:      l.self.ID,
		IdempotencyKey: idempotencyKey,
	})
	if !l.current(seq) || ctx.Err() != nil {
		if err == nil {
			l.compensate(ctx, room, l.ctrl.EndRoom)
		}
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, err
	}
	return New(l.ctrl, room, l.self, l.opts), nil
}

// Join enters the room owning code and returns an unattached session.
func (l *Lobby) Join(ctx context.Context, code, displayName string, score int) (*Session, error) {
	seq := l.next()
	listed := l.listedIn(ctx, code)
	room, err := l.ctrl.JoinRoom(ctx, code, core.JoinerFor(l.self, displayName), score)
	if !l.current(seq) || ctx.Err() != nil {
		// A re-join changes nothing, so there is nothing to undo.
		if err == nil && !listed && room.CreatorID != l.self.ID {
			l.compensate(ctx, room, l.ctrl.LeaveRoom)
		}
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, err
	}
	return New(l.ctrl, room, l.self, l.opts), nil
}

// listedIn reports whether this device is already on the roster of the room
// owning code. Lookup failures count as not listed.
func (l *Lobby) listedIn(ctx context.Context, code string) bool {
	room, err := l.ctrl.FindByCode(ctx, code)
	return err == nil && room.HasParticipant(l.self.ID)
}

func (l *Lobby) compensate(ctx context.Context, room *store.Room, undo func(context.Context, string, string) (*store.Room, error)) {
	if _, err := undo(context.WithoutCancel(ctx), room.ID, l.self.ID); err != nil {
		l.opts.Logger.Warn().Err(err).Str("room_id", room.ID).Msg("failed to roll back abandoned request")
		return
	}
	l.opts.Logger.Debug().Str("room_id", room.ID).Msg("rolled back abandoned request")
}
