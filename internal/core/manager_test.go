package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/fitroom-server/internal/roomcode"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

func TestCreateRoomValidation(t *testing.T) {
	m := newTestManager(memoryStore(t))

	tests := []struct {
		name   string
		params CreateParams
	}{
		{name: "zero capacity", params: CreateParams{Capacity: 0, Activity: "Squats", CreatorID: "c"}},
		{name: "capacity above max", params: CreateParams{Capacity: DefaultMaxCapacity + 1, Activity: "Squats", CreatorID: "c"}},
		{name: "blank activity", params: CreateParams{Capacity: 2, Activity: "   ", CreatorID: "c"}},
		{name: "missing creator", params: CreateParams{Capacity: 2, Activity: "Squats"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateRoom(context.Background(), tt.params)
			mustCode(t, err, ErrValidation, ErrCodeValidation)
		})
	}
}

func TestCreateRoom(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := NewManager(st, nil, Options{}, nil)
		room, err := m.CreateRoom(context.Background(), CreateParams{Capacity: 4, Activity: " Squats ", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if len(room.Code) != 4 || room.Code < "1000" || room.Code > "9999" {
			t.Fatalf("unexpected code %q", room.Code)
		}
		if room.Status != store.RoomStatusActive || len(room.Participants) != 0 {
			t.Fatalf("unexpected fresh room: %+v", room)
		}
		if room.Activity != "Squats" || room.Capacity != 4 || room.CreatorID != "c" {
			t.Fatalf("fields not stored: %+v", room)
		}

		found, err := m.FindByCode(context.Background(), room.Code)
		if err != nil {
			t.Fatalf("find by code: %v", err)
		}
		if found.ID != room.ID {
			t.Fatalf("expected %s, got %s", room.ID, found.ID)
		}
	})
}

func TestCreateRoomRetriesTakenCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "1111", "1111", "2222")
		ctx := context.Background()

		first, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "a"})
		if err != nil {
			t.Fatalf("first create: %v", err)
		}
		second, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "b"})
		if err != nil {
			t.Fatalf("second create: %v", err)
		}
		if first.Code != "1111" || second.Code != "2222" {
			t.Fatalf("expected codes 1111 and 2222, got %s and %s", first.Code, second.Code)
		}
	})
}

func TestCreateRoomGivesUpAfterRetries(t *testing.T) {
	st := memoryStore(t)
	m := NewManager(st, roomcode.Sequence("1111"), Options{CodeRetries: 3}, nil)
	ctx := context.Background()

	if _, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "a"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "b"})
	mustCode(t, err, ErrConflict, ErrCodeConflict)
}

func TestCreateRoomIdempotencyKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := NewManager(st, nil, Options{}, nil)
		ctx := context.Background()
		params := CreateParams{Capacity: 3, Activity: "Plank", CreatorID: "c", IdempotencyKey: "tap-1"}

		first, err := m.CreateRoom(ctx, params)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		again, err := m.CreateRoom(ctx, params)
		if err != nil {
			t.Fatalf("retried create: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("retry created a second room")
		}

		params.CreatorID = "other"
		other, err := m.CreateRoom(ctx, params)
		if err != nil {
			t.Fatalf("other creator: %v", err)
		}
		if other.ID == first.ID {
			t.Fatalf("key must be scoped to the creator")
		}
	})
}

func TestEndedRoomReleasesCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "4242")
		ctx := context.Background()

		first, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := m.EndRoom(ctx, first.ID, "c"); err != nil {
			t.Fatalf("end: %v", err)
		}
		second, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create after end: %v", err)
		}
		if second.Code != "4242" || second.ID == first.ID {
			t.Fatalf("expected a new room under the recycled code, got %+v", second)
		}
	})
}

func TestJoinRoomValidation(t *testing.T) {
	m := newTestManager(memoryStore(t))

	tests := []struct {
		name   string
		code   string
		joiner Joiner
		score  int
	}{
		{name: "empty code", code: "", joiner: joiner("u")},
		{name: "blank code", code: "   ", joiner: joiner("u")},
		{name: "short code", code: "12", joiner: joiner("u")},
		{name: "letters", code: "ab12", joiner: joiner("u")},
		{name: "missing user", code: "1234", joiner: Joiner{}},
		{name: "negative score", code: "1234", joiner: joiner("u"), score: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.JoinRoom(context.Background(), tt.code, tt.joiner, tt.score)
			mustCode(t, err, ErrValidation, ErrCodeValidation)
		})
	}
}

func TestJoinRoom(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "7421")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Squats", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if _, err := m.JoinRoom(ctx, "0000", joiner("x"), 0); err == nil {
			t.Fatalf("expected unknown code to fail")
		} else {
			mustCode(t, err, ErrNotFound, ErrCodeRoomNotFound)
		}

		joined, err := m.JoinRoom(ctx, " 7421 ", Joiner{UserID: "u1"}, 5)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if len(joined.Participants) != 1 {
			t.Fatalf("expected 1 participant, got %d", len(joined.Participants))
		}
		p := joined.Participants[0]
		if p.UserID != "u1" || p.DisplayName != DefaultDisplayName || p.Score != 5 {
			t.Fatalf("unexpected participant: %+v", p)
		}

		again, err := m.JoinRoom(ctx, "7421", Joiner{UserID: "u1", DisplayName: "renamed"}, 0)
		if err != nil {
			t.Fatalf("re-join: %v", err)
		}
		if len(again.Participants) != 1 || again.Version != joined.Version {
			t.Fatalf("re-join must not add a row: %+v", again.Participants)
		}

		full, err := m.JoinRoom(ctx, "7421", joiner("u2"), 0)
		if err != nil {
			t.Fatalf("second join: %v", err)
		}
		if full.Participants[0].UserID != "u1" || full.Participants[1].UserID != "u2" {
			t.Fatalf("join order not kept: %+v", full.Participants)
		}

		_, err = m.JoinRoom(ctx, "7421", joiner("u3"), 0)
		mustCode(t, err, ErrCapacity, ErrCodeRoomFull)

		reloaded, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		if len(reloaded.Participants) != 2 {
			t.Fatalf("rejected join changed the roster: %d", len(reloaded.Participants))
		}
	})
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "5150")
		ctx := context.Background()
		const capacity = 4
		const joiners = 20

		room, err := m.CreateRoom(ctx, CreateParams{Capacity: capacity, Activity: "Burpees", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		var admitted, rejected atomic.Int32
		var g errgroup.Group
		for i := range joiners {
			g.Go(func() error {
				_, err := m.JoinRoom(ctx, room.Code, joiner(fmt.Sprintf("u%d", i)), 0)
				switch {
				case err == nil:
					admitted.Add(1)
				case errors.Is(err, ErrCapacity):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("unexpected join error: %v", err)
		}

		if admitted.Load() != capacity || rejected.Load() != joiners-capacity {
			t.Fatalf("expected %d admitted, got %d admitted / %d rejected", capacity, admitted.Load(), rejected.Load())
		}
	})
}

func TestEndRoom(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "3030")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Row", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := m.JoinRoom(ctx, room.Code, joiner("u1"), 0); err != nil {
			t.Fatalf("join: %v", err)
		}

		_, err = m.EndRoom(ctx, room.ID, "u1")
		mustCode(t, err, ErrUnauthorized, ErrCodeForbidden)

		untouched, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		if untouched.Status != store.RoomStatusActive || len(untouched.Participants) != 1 {
			t.Fatalf("forbidden end mutated the room: %+v", untouched)
		}

		ended, err := m.EndRoom(ctx, room.ID, "c")
		if err != nil {
			t.Fatalf("end: %v", err)
		}
		if ended.Status != store.RoomStatusEnded || len(ended.Participants) != 0 || ended.ClosedReason != store.ClosedReasonEnd {
			t.Fatalf("unexpected ended room: %+v", ended)
		}

		again, err := m.EndRoom(ctx, room.ID, "c")
		if err != nil {
			t.Fatalf("second end: %v", err)
		}
		if again.Version != ended.Version {
			t.Fatalf("ending an ended room must not write")
		}

		_, err = m.JoinRoom(ctx, room.Code, joiner("late"), 0)
		mustCode(t, err, ErrNotFound, ErrCodeRoomNotFound)
		_, err = m.FindByCode(ctx, room.Code)
		mustCode(t, err, ErrNotFound, ErrCodeRoomNotFound)
	})
}

func TestExitRoomRecordsReason(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "3131")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Row", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		exited, err := m.ExitRoom(ctx, room.ID, "c")
		if err != nil {
			t.Fatalf("exit: %v", err)
		}
		if exited.Status != store.RoomStatusEnded || exited.ClosedReason != store.ClosedReasonExit {
			t.Fatalf("unexpected exited room: %+v", exited)
		}

		_, err = m.ExitRoom(ctx, "missing", "c")
		mustCode(t, err, ErrNotFound, ErrCodeRoomNotFound)
	})
}

func TestConcurrentClosesWriteOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "3232")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Row", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := m.JoinRoom(ctx, room.Code, joiner("u1"), 0); err != nil {
			t.Fatalf("join: %v", err)
		}
		before, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}

		const closers = 8
		results := make([]*store.Room, closers)
		var g errgroup.Group
		for i := range closers {
			g.Go(func() error {
				var closed *store.Room
				var err error
				if i%2 == 0 {
					closed, err = m.EndRoom(ctx, room.ID, "c")
				} else {
					closed, err = m.ExitRoom(ctx, room.ID, "c")
				}
				results[i] = closed
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("close: %v", err)
		}

		final, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		if final.Version != before.Version+1 {
			t.Fatalf("expected exactly one close write (version %d), got %d", before.Version+1, final.Version)
		}
		for i, r := range results {
			if r.Version != final.Version || r.ClosedReason != final.ClosedReason || r.Status != store.RoomStatusEnded {
				t.Fatalf("closer %d saw %+v, final room is %+v", i, r, final)
			}
		}
	})
}

func TestStartWorkout(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "6060")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Jump rope", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		_, err = m.StartWorkout(ctx, room.ID, "someone")
		mustCode(t, err, ErrUnauthorized, ErrCodeForbidden)

		running, err := m.StartWorkout(ctx, room.ID, "c")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if running.Status != store.RoomStatusRunning {
			t.Fatalf("expected running, got %s", running.Status)
		}

		again, err := m.StartWorkout(ctx, room.ID, "c")
		if err != nil {
			t.Fatalf("repeated start: %v", err)
		}
		if again.Version != running.Version {
			t.Fatalf("repeated start must not write")
		}

		late, err := m.JoinRoom(ctx, room.Code, joiner("late"), 0)
		if err != nil {
			t.Fatalf("join running room: %v", err)
		}
		if late.Status != store.RoomStatusRunning {
			t.Fatalf("late joiner must see the running status")
		}

		if _, err := m.EndRoom(ctx, room.ID, "c"); err != nil {
			t.Fatalf("end: %v", err)
		}
		_, err = m.StartWorkout(ctx, room.ID, "c")
		mustCode(t, err, ErrConflict, ErrCodeConflict)
	})
}

func TestUpdateScore(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "7070")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Squats", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, id := range []string{"u1", "u2"} {
			if _, err := m.JoinRoom(ctx, room.Code, joiner(id), 0); err != nil {
				t.Fatalf("join %s: %v", id, err)
			}
		}

		updated, err := m.UpdateScore(ctx, room.ID, "u2", 15)
		if err != nil {
			t.Fatalf("update score: %v", err)
		}
		if updated.Participants[1].Score != 15 || updated.Participants[0].Score != 0 {
			t.Fatalf("unexpected scores: %+v", updated.Participants)
		}
		if updated.Participants[0].UserID != "u1" {
			t.Fatalf("score update reordered the roster")
		}

		_, err = m.UpdateScore(ctx, room.ID, "ghost", 1)
		mustCode(t, err, ErrNotFound, ErrCodeRoomNotFound)
		_, err = m.UpdateScore(ctx, room.ID, "u1", -3)
		mustCode(t, err, ErrValidation, ErrCodeValidation)

		if _, err := m.EndRoom(ctx, room.ID, "c"); err != nil {
			t.Fatalf("end: %v", err)
		}
		_, err = m.UpdateScore(ctx, room.ID, "u1", 3)
		mustCode(t, err, ErrConflict, ErrCodeConflict)
	})
}

func TestConcurrentScoreUpdatesAllLand(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "7171")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 4, Activity: "Squats", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids := []string{"u1", "u2", "u3", "u4"}
		for _, id := range ids {
			if _, err := m.JoinRoom(ctx, room.Code, joiner(id), 0); err != nil {
				t.Fatalf("join %s: %v", id, err)
			}
		}

		var g errgroup.Group
		for i, id := range ids {
			g.Go(func() error {
				_, err := m.UpdateScore(ctx, room.ID, id, (i+1)*10)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("update score: %v", err)
		}

		final, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		for i, p := range final.Participants {
			if p.Score != (i+1)*10 {
				t.Fatalf("lost update for %s: %d", p.UserID, p.Score)
			}
		}
	})
}

func TestLeaveRoom(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "8080")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Lunges", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, id := range []string{"c", "u1", "u2"} {
			if _, err := m.JoinRoom(ctx, room.Code, joiner(id), 0); err != nil {
				t.Fatalf("join %s: %v", id, err)
			}
		}

		left, err := m.LeaveRoom(ctx, room.ID, "u1")
		if err != nil {
			t.Fatalf("leave: %v", err)
		}
		if len(left.Participants) != 2 || left.Participants[0].UserID != "c" || left.Participants[1].UserID != "u2" {
			t.Fatalf("unexpected roster after leave: %+v", left.Participants)
		}

		again, err := m.LeaveRoom(ctx, room.ID, "u1")
		if err != nil {
			t.Fatalf("repeated leave: %v", err)
		}
		if again.Version != left.Version {
			t.Fatalf("repeated leave must not write")
		}

		_, err = m.LeaveRoom(ctx, room.ID, "c")
		mustCode(t, err, ErrValidation, ErrCodeValidation)

		// The freed slot can be taken by someone else.
		if _, err := m.JoinRoom(ctx, room.Code, joiner("u3"), 0); err != nil {
			t.Fatalf("join freed slot: %v", err)
		}
	})
}

func TestSubscribersSeeRoomEnd(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		m := newTestManager(st, "9090")
		ctx := context.Background()
		room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Yoga", CreatorID: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		updates := make(chan *store.Room, 8)
		unsub, err := m.Subscribe(ctx, room.ID, func(r *store.Room) { updates <- r })
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer unsub()

		if _, err := m.JoinRoom(ctx, room.Code, joiner("u1"), 0); err != nil {
			t.Fatalf("join: %v", err)
		}
		if _, err := m.EndRoom(ctx, room.ID, "c"); err != nil {
			t.Fatalf("end: %v", err)
		}

		timeout := time.After(2 * time.Second)
		var lastVersion int64
		for {
			select {
			case r := <-updates:
				if r.Version <= lastVersion {
					t.Fatalf("updates out of order: %d after %d", r.Version, lastVersion)
				}
				lastVersion = r.Version
				if ev := EventFor(r, store.RoomStatusActive); ev.Kind == EventRoomEnded {
					if ev.Reason != store.ClosedReasonEnd || len(r.Participants) != 0 {
						t.Fatalf("unexpected ended snapshot: %+v", r)
					}
					return
				}
			case <-timeout:
				t.Fatalf("ended snapshot not delivered")
			}
		}
	})
}

type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) FindActiveByCode(context.Context, string) (*store.Room, error) {
	return nil, b.err
}

func (b brokenStore) GetRoom(context.Context, string) (*store.Room, error) {
	return nil, b.err
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	cause := errors.New("disk on fire")
	m := newTestManager(brokenStore{Store: memoryStore(t), err: cause})
	ctx := context.Background()

	_, err := m.JoinRoom(ctx, "1234", joiner("u"), 0)
	mustCode(t, err, ErrStore, ErrCodeStore)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not preserved: %v", err)
	}

	_, err = m.CreateRoom(ctx, CreateParams{Capacity: 2, Activity: "Run", CreatorID: "c"})
	mustCode(t, err, ErrStore, ErrCodeStore)

	_, err = m.EndRoom(ctx, "r", "c")
	mustCode(t, err, ErrStore, ErrCodeStore)
}

func TestExecuteDispatchesCommands(t *testing.T) {
	m := newTestManager(memoryStore(t), "1212")
	ctx := context.Background()
	room, err := m.CreateRoom(ctx, CreateParams{Capacity: 3, Activity: "Squats", CreatorID: "c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.JoinRoom(ctx, room.Code, joiner("u1"), 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	creator := Identity{ID: "c"}
	member := Identity{ID: "u1"}

	started, err := m.Execute(ctx, creator, Command{Kind: CommandStartWorkout, RoomID: room.ID})
	if err != nil || started.Status != store.RoomStatusRunning {
		t.Fatalf("start via execute: %v %+v", err, started)
	}

	scored, err := m.Execute(ctx, member, Command{Kind: CommandUpdateScore, RoomID: room.ID, Score: 9})
	if err != nil || scored.Participants[0].Score != 9 {
		t.Fatalf("score via execute: %v %+v", err, scored)
	}

	_, err = m.Execute(ctx, member, Command{Kind: CommandEnd, RoomID: room.ID})
	mustCode(t, err, ErrUnauthorized, ErrCodeForbidden)

	_, err = m.Execute(ctx, member, Command{Kind: CommandKind(99), RoomID: room.ID})
	mustCode(t, err, ErrValidation, ErrCodeBadRequest)

	left, err := m.Execute(ctx, member, Command{Kind: CommandLeave, RoomID: room.ID})
	if err != nil || len(left.Participants) != 0 {
		t.Fatalf("leave via execute: %v %+v", err, left)
	}

	exited, err := m.Execute(ctx, creator, Command{Kind: CommandExit, RoomID: room.ID})
	if err != nil || exited.ClosedReason != store.ClosedReasonExit {
		t.Fatalf("exit via execute: %v %+v", err, exited)
	}
}

func TestEventFor(t *testing.T) {
	tests := []struct {
		name     string
		status   store.RoomStatus
		previous store.RoomStatus
		want     EventKind
	}{
		{name: "active snapshot", status: store.RoomStatusActive, previous: store.RoomStatusActive, want: EventRoomSnapshot},
		{name: "started", status: store.RoomStatusRunning, previous: store.RoomStatusActive, want: EventWorkoutStarted},
		{name: "still running", status: store.RoomStatusRunning, previous: store.RoomStatusRunning, want: EventRoomSnapshot},
		{name: "ended", status: store.RoomStatusEnded, previous: store.RoomStatusRunning, want: EventRoomEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EventFor(&store.Room{Status: tt.status}, tt.previous)
			if ev.Kind != tt.want {
				t.Fatalf("expected kind %v, got %v", tt.want, ev.Kind)
			}
		})
	}

	errEv := ErrorEvent(errors.New("boom"))
	if errEv.Kind != EventError || errEv.Error.Code != ErrCodeStore {
		t.Fatalf("unexpected error event: %+v", errEv)
	}
}
