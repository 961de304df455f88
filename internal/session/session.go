// Package session is the per-device view of one room: it keeps the latest
// roster, relays creator commands and notices when the room goes away.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultRetryBackoff    = time.Second
	DefaultMaxRetryBackoff = 30 * time.Second

	eventBuffer  = 16
	noticeBuffer = 8
)

// ErrDetached is returned when a detached session is used again.
var ErrDetached = errors.New("session detached")

// Mode selects how a session learns about room changes.
type Mode int

const (
	// ModePush subscribes to store change notifications.
	ModePush Mode = iota
	// ModePoll re-reads the room on a fixed interval. Fallback only.
	ModePoll
)

func (m Mode) String() string {
	if m == ModePoll {
		return "poll"
	}
	return "push"
}

// ParseMode accepts "push" and "poll". Empty means push.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "push":
		return ModePush, nil
	case "poll":
		return ModePoll, nil
	default:
		return ModePush, fmt.Errorf("unknown session mode %q", s)
	}
}

// Options tune a session. Zero values fall back to the defaults.
type Options struct {
	Mode            Mode
	PollInterval    time.Duration
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Logger          *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MaxRetryBackoff < o.RetryBackoff {
		o.MaxRetryBackoff = max(DefaultMaxRetryBackoff, o.RetryBackoff)
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// Controller is what a session needs from the room manager.
type Controller interface {
	GetRoom(ctx context.Context, roomID string) (*store.Room, error)
	Subscribe(ctx context.Context, roomID string, fn func(*store.Room)) (store.Unsubscribe, error)
	StartWorkout(ctx context.Context, roomID, requesterID string) (*store.Room, error)
	EndRoom(ctx context.Context, roomID, requesterID string) (*store.Room, error)
	ExitRoom(ctx context.Context, roomID, requesterID string) (*store.Room, error)
	UpdateScore(ctx context.Context, roomID, userID string, score int) (*store.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) (*store.Room, error)
}

type state int

const (
	stateIdle state = iota
	stateAttached
	stateClosed
)

// Session is single use: once detached, by the caller or because the room
// went away, it cannot be attached again.
type Session struct {
	ctrl      Controller
	self      core.Identity
	roomID    string
	creatorID string
	opts      Options
	log       *zerolog.Logger

	mu      sync.Mutex
	state   state
	room    *store.Room
	listed  bool
	unsub   store.Unsubscribe
	cancel  context.CancelFunc
	events  chan core.Event
	notices chan Notice
}

// New binds a session to room as returned by create or join.
func New(ctrl Controller, room *store.Room, self core.Identity, opts Options) *Session {
	if ctrl == nil || room == nil {
		panic("session needs a controller and a room")
	}
	opts = opts.withDefaults()
	s := &Session{
		ctrl:      ctrl,
		self:      self,
		roomID:    room.ID,
		creatorID: room.CreatorID,
		opts:      opts,
		log:       opts.Logger,
		room:      room.Clone(),
		events:    make(chan core.Event, eventBuffer),
		notices:   make(chan Notice, noticeBuffer),
	}
	s.listed = s.room.HasParticipant(self.ID)
	return s
}

// RoomID returns the bound room.
func (s *Session) RoomID() string { return s.roomID }

// IsCreator reports whether this device may issue creator commands.
func (s *Session) IsCreator() bool { return s.self.ID == s.creatorID }

// Events delivers room events in version order. Closed on detach.
func (s *Session) Events() <-chan core.Event { return s.events }

// Notices delivers user-facing notices. Closed on detach.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Attached reports whether the session is currently receiving updates.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAttached
}

// Room returns a copy of the latest snapshot.
func (s *Session) Room() *store.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Clone()
}

// Roster returns the participants in join order.
func (s *Session) Roster() []store.Participant {
	return s.Room().Participants
}

// Leaderboard returns the participants by descending score. Ties keep join order.
func (s *Session) Leaderboard() []store.Participant {
	board := s.Roster()
	slices.SortStableFunc(board, func(a, b store.Participant) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return board
}

// Attach starts receiving updates and fetches a fresh snapshot. Store
// failures after this point are retried in the background; any other error
// detaches the session before returning.
func (s *Session) Attach(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case stateAttached:
		s.mu.Unlock()
		return nil
	case stateClosed:
		s.mu.Unlock()
		return ErrDetached
	}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.state = stateAttached
	s.cancel = cancel
	s.mu.Unlock()

	if s.opts.Mode == ModePoll {
		go s.pollLoop(bg)
	} else if err := s.subscribe(bg); err != nil {
		if !errors.Is(err, core.ErrStore) {
			s.Detach()
			return err
		}
		s.log.Warn().Err(err).Str("room_id", s.roomID).Msg("subscribe failed, retrying in background")
		s.notify(Notice{Kind: NoticeReconnecting, Message: reconnectingMessage, Err: err})
		go s.resubscribeLoop(bg)
	}

	room, err := s.ctrl.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, core.ErrStore) {
			s.log.Warn().Err(err).Str("room_id", s.roomID).Msg("initial snapshot unavailable, keeping last roster")
			return nil
		}
		s.Detach()
		return err
	}
	s.apply(room)
	return nil
}

// Detach stops updates and closes the event channels. Safe to call more than once.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
}

// StartWorkout marks the room running. Creator only.
func (s *Session) StartWorkout(ctx context.Context) error {
	return s.creatorCommand(ctx, s.ctrl.StartWorkout)
}

// End closes the room for everyone. Creator only.
func (s *Session) End(ctx context.Context) error {
	return s.creatorCommand(ctx, s.ctrl.EndRoom)
}

// Exit closes the room because the creator is leaving. Creator only.
func (s *Session) Exit(ctx context.Context) error {
	return s.creatorCommand(ctx, s.ctrl.ExitRoom)
}

// UpdateScore reports this device's score.
func (s *Session) UpdateScore(ctx context.Context, score int) error {
	room, err := s.ctrl.UpdateScore(ctx, s.roomID, s.self.ID, score)
	if err != nil {
		return err
	}
	s.apply(room)
	return nil
}

// Leave drops this device from the room and detaches. The creator exits instead.
func (s *Session) Leave(ctx context.Context) error {
	if s.IsCreator() {
		return s.Exit(ctx)
	}
	defer s.Detach()
	_, err := s.ctrl.LeaveRoom(ctx, s.roomID, s.self.ID)
	return err
}

func (s *Session) creatorCommand(ctx context.Context, op func(context.Context, string, string) (*store.Room, error)) error {
	if !s.IsCreator() {
		return core.Forbidden("only the room creator can do that")
	}
	room, err := op(ctx, s.roomID, s.self.ID)
	if err != nil {
		return err
	}
	s.apply(room)
	return nil
}

func (s *Session) subscribe(ctx context.Context) error {
	unsub, err := s.ctrl.Subscribe(ctx, s.roomID, s.apply)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateAttached {
		unsub()
		return ErrDetached
	}
	s.unsub = unsub
	return nil
}

func (s *Session) resubscribeLoop(ctx context.Context) {
	delay := s.opts.RetryBackoff
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := s.subscribe(ctx)
		if err == nil {
			// Catch up on whatever changed while unsubscribed.
			if room, err := s.ctrl.GetRoom(ctx, s.roomID); err == nil {
				s.apply(room)
			}
			s.log.Info().Str("room_id", s.roomID).Msg("subscription restored")
			return
		}
		if errors.Is(err, ErrDetached) || ctx.Err() != nil {
			return
		}

		delay = min(delay*2, s.opts.MaxRetryBackoff)
		s.log.Debug().Err(err).Dur("retry_in", delay).Str("room_id", s.roomID).Msg("resubscribe failed")
		timer.Reset(delay)
	}
}

func (s *Session) pollLoop(ctx context.Context) {
	backoff := s.opts.RetryBackoff
	timer := time.NewTimer(s.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := s.opts.PollInterval
		room, err := s.ctrl.GetRoom(ctx, s.roomID)
		switch {
		case err == nil:
			s.apply(room)
			backoff = s.opts.RetryBackoff
		case errors.Is(err, core.ErrNotFound):
			s.mu.Lock()
			s.closeLocked(&Notice{Kind: NoticeTerminated, Message: goneMessage, Err: err})
			s.mu.Unlock()
			return
		default:
			if ctx.Err() != nil {
				return
			}
			delay = backoff
			backoff = min(backoff*2, s.opts.MaxRetryBackoff)
			s.log.Debug().Err(err).Dur("retry_in", delay).Str("room_id", s.roomID).Msg("poll failed, keeping last roster")
		}
		timer.Reset(delay)
	}
}

// apply installs room if it is newer than what the session holds and
// detaches when the room ended or emptied out under a non-creator.
func (s *Session) apply(room *store.Room) {
	if room == nil || room.ID != s.roomID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAttached || room.Version <= s.room.Version {
		return
	}

	previous := s.room.Status
	s.room = room.Clone()
	if s.room.HasParticipant(s.self.ID) {
		s.listed = true
	}

	ev := core.EventFor(s.room, previous)
	s.emitLocked(ev)

	switch {
	case ev.Kind == core.EventRoomEnded:
		s.closeLocked(&Notice{Kind: NoticeTerminated, Reason: room.ClosedReason, Message: terminationMessage(room.ClosedReason)})
	case !s.IsCreator() && s.listed && len(s.room.Participants) == 0:
		s.closeLocked(&Notice{Kind: NoticeTerminated, Message: terminationMessage("")})
	case ev.Kind == core.EventWorkoutStarted:
		s.noticeLocked(Notice{Kind: NoticeWorkoutStarted, Message: workoutStartedMessage})
	}
}

func (s *Session) notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.noticeLocked(n)
}

func (s *Session) emitLocked(ev core.Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

func (s *Session) noticeLocked(n Notice) {
	for {
		select {
		case s.notices <- n:
			return
		default:
		}
		select {
		case <-s.notices:
		default:
		}
	}
}

// closeLocked runs every teardown step exactly once, whichever path got here first.
func (s *Session) closeLocked(n *Notice) {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if n != nil {
		s.noticeLocked(*n)
		s.log.Info().Str("room_id", s.roomID).Str("reason", n.Reason).Msg("session terminated")
	}
	close(s.events)
	close(s.notices)
}
