// Package storetest holds the behaviour every store.Store implementation must
// satisfy. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/fitroom-server/internal/store"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"CreateAndFindByCode", testCreateAndFindByCode},
		{"LiveCodeIsUnique", testLiveCodeIsUnique},
		{"EndedRoomReleasesCode", testEndedRoomReleasesCode},
		{"IdempotencyKey", testIdempotencyKey},
		{"AppendRespectsCapacity", testAppendRespectsCapacity},
		{"AppendKeepsJoinOrder", testAppendKeepsJoinOrder},
		{"AppendSameUserIsNoop", testAppendSameUserIsNoop},
		{"AppendToEndedRoom", testAppendToEndedRoom},
		{"ConcurrentAppendNeverOverfills", testConcurrentAppendNeverOverfills},
		{"UpdateClearsRoster", testUpdateClearsRoster},
		{"UpdateCompareAndSwap", testUpdateCompareAndSwap},
		{"EndedIsTerminal", testEndedIsTerminal},
		{"SubscribeReceivesMutations", testSubscribeReceivesMutations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func newRoom(code string, capacity int) *store.Room {
	return &store.Room{
		Code:      code,
		Capacity:  capacity,
		Activity:  "Squats",
		CreatorID: "creator",
		Status:    store.RoomStatusActive,
	}
}

func mustCreate(t *testing.T, st store.Store, room *store.Room) *store.Room {
	t.Helper()

	created, err := st.CreateRoom(context.Background(), room)
	if err != nil {
		t.Fatalf("create room %s: %v", room.Code, err)
	}
	return created
}

func participant(id string) store.Participant {
	return store.Participant{UserID: id, DisplayName: id}
}

func testCreateAndFindByCode(t *testing.T, st store.Store) {
	ctx := context.Background()
	created := mustCreate(t, st, newRoom("7421", 4))

	if created.ID == "" {
		t.Fatalf("expected store to assign an id")
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	found, err := st.FindActiveByCode(ctx, "7421")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected room %s, got %s", created.ID, found.ID)
	}
	if found.Status != store.RoomStatusActive || len(found.Participants) != 0 {
		t.Fatalf("unexpected fresh room: %+v", found)
	}
	if found.Activity != "Squats" || found.Capacity != 4 || found.CreatorID != "creator" {
		t.Fatalf("fields not persisted: %+v", found)
	}

	if _, err := st.FindActiveByCode(ctx, "0000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetRoom(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testLiveCodeIsUnique(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("1111", 2))

	if _, err := st.CreateRoom(context.Background(), newRoom("1111", 3)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func testEndedRoomReleasesCode(t *testing.T, st store.Store) {
	ctx := context.Background()
	first := mustCreate(t, st, newRoom("2222", 2))

	ended := store.RoomStatusEnded
	if _, err := st.UpdateRoom(ctx, first.ID, store.Patch{Status: &ended}); err != nil {
		t.Fatalf("end room: %v", err)
	}

	second := mustCreate(t, st, newRoom("2222", 2))
	found, err := st.FindActiveByCode(ctx, "2222")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if found.ID != second.ID {
		t.Fatalf("expected recycled code to resolve to the new room")
	}
}

func testIdempotencyKey(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := newRoom("3333", 2)
	room.IdempotencyKey = "attempt-1"
	created := mustCreate(t, st, room)

	found, err := st.FindByIdempotencyKey(ctx, "creator", "attempt-1")
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, found.ID)
	}

	dup := newRoom("4444", 2)
	dup.IdempotencyKey = "attempt-1"
	if _, err := st.CreateRoom(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for reused key, got %v", err)
	}

	if _, err := st.FindByIdempotencyKey(ctx, "someone-else", "attempt-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other creator, got %v", err)
	}
}

func testAppendRespectsCapacity(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("5555", 2))

	for _, id := range []string{"a", "b"} {
		if _, err := st.AppendParticipant(ctx, room.ID, participant(id), room.Capacity); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if _, err := st.AppendParticipant(ctx, room.ID, participant("c"), room.Capacity); !errors.Is(err, store.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}

	// A caller-supplied bound tighter than the stored capacity also applies.
	other := mustCreate(t, st, newRoom("5556", 5))
	if _, err := st.AppendParticipant(ctx, other.ID, participant("a"), 0); !errors.Is(err, store.ErrCapacity) {
		t.Fatalf("expected ErrCapacity for maxCount 0, got %v", err)
	}
}

func testAppendKeepsJoinOrder(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("6666", 4))

	var last *store.Room
	for i, id := range []string{"zed", "amy", "kim"} {
		p := participant(id)
		p.Score = 10 * i
		var err error
		last, err = st.AppendParticipant(ctx, room.ID, p, room.Capacity)
		if err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	want := []string{"zed", "amy", "kim"}
	if len(last.Participants) != len(want) {
		t.Fatalf("expected %d participants, got %d", len(want), len(last.Participants))
	}
	for i, id := range want {
		if last.Participants[i].UserID != id {
			t.Fatalf("participant %d: expected %s, got %s", i, id, last.Participants[i].UserID)
		}
	}
	if last.Participants[2].Score != 20 {
		t.Fatalf("expected score 20, got %d", last.Participants[2].Score)
	}
	if last.Version != 4 {
		t.Fatalf("expected version 4 after three appends, got %d", last.Version)
	}
}

func testAppendSameUserIsNoop(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("7777", 2))

	first, err := st.AppendParticipant(ctx, room.ID, participant("alice"), room.Capacity)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	again, err := st.AppendParticipant(ctx, room.ID, participant("alice"), room.Capacity)
	if err != nil {
		t.Fatalf("re-append: %v", err)
	}
	if len(again.Participants) != 1 || again.Version != first.Version {
		t.Fatalf("expected unchanged room, got %d participants version %d", len(again.Participants), again.Version)
	}
}

func testAppendToEndedRoom(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("8888", 2))

	ended := store.RoomStatusEnded
	if _, err := st.UpdateRoom(ctx, room.ID, store.Patch{Status: &ended, ClearRoster: true}); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := st.AppendParticipant(ctx, room.ID, participant("late"), room.Capacity); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.AppendParticipant(ctx, "missing", participant("late"), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room, got %v", err)
	}
}

func testConcurrentAppendNeverOverfills(t *testing.T, st store.Store) {
	ctx := context.Background()
	const capacity = 3
	const joiners = 12
	room := mustCreate(t, st, newRoom("9999", capacity))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	start := make(chan struct{})
	for i := range joiners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := st.AppendParticipant(ctx, room.ID, participant(string(rune('a'+i))), capacity)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, store.ErrCapacity):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if admitted != capacity || rejected != joiners-capacity {
		t.Fatalf("expected %d admitted / %d rejected, got %d / %d", capacity, joiners-capacity, admitted, rejected)
	}
	final, err := st.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(final.Participants) != capacity {
		t.Fatalf("roster overfilled: %d", len(final.Participants))
	}
}

func testUpdateClearsRoster(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("1212", 3))
	if _, err := st.AppendParticipant(ctx, room.ID, participant("a"), room.Capacity); err != nil {
		t.Fatalf("append: %v", err)
	}

	ended := store.RoomStatusEnded
	reason := store.ClosedReasonEnd
	updated, err := st.UpdateRoom(ctx, room.ID, store.Patch{Status: &ended, ClosedReason: &reason, ClearRoster: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != store.RoomStatusEnded || len(updated.Participants) != 0 || updated.ClosedReason != reason {
		t.Fatalf("unexpected ended room: %+v", updated)
	}

	reloaded, err := st.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(reloaded.Participants) != 0 {
		t.Fatalf("roster not persisted as empty")
	}
	if _, err := st.FindActiveByCode(ctx, "1212"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ended room still resolvable by code: %v", err)
	}
}

func testUpdateCompareAndSwap(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("1313", 3))
	joined, err := st.AppendParticipant(ctx, room.ID, participant("a"), room.Capacity)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	roster := append([]store.Participant{}, joined.Participants...)
	roster[0].Score = 42
	updated, err := st.UpdateRoom(ctx, room.ID, store.Patch{Participants: roster, ExpectedVersion: joined.Version})
	if err != nil {
		t.Fatalf("cas update: %v", err)
	}
	if updated.Participants[0].Score != 42 {
		t.Fatalf("expected score 42, got %d", updated.Participants[0].Score)
	}

	if _, err := st.UpdateRoom(ctx, room.ID, store.Patch{Participants: roster, ExpectedVersion: joined.Version}); !errors.Is(err, store.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func testEndedIsTerminal(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("1414", 2))

	ended := store.RoomStatusEnded
	if _, err := st.UpdateRoom(ctx, room.ID, store.Patch{Status: &ended}); err != nil {
		t.Fatalf("end: %v", err)
	}
	active := store.RoomStatusActive
	if _, err := st.UpdateRoom(ctx, room.ID, store.Patch{Status: &active}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on resurrection, got %v", err)
	}
}

func testSubscribeReceivesMutations(t *testing.T, st store.Store) {
	ctx := context.Background()
	room := mustCreate(t, st, newRoom("1515", 2))

	updates := make(chan *store.Room, 8)
	unsub, err := st.Subscribe(ctx, room.ID, func(r *store.Room) { updates <- r })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if _, err := st.AppendParticipant(ctx, room.ID, participant("alice"), room.Capacity); err != nil {
		t.Fatalf("append: %v", err)
	}
	ended := store.RoomStatusEnded
	if _, err := st.UpdateRoom(ctx, room.ID, store.Patch{Status: &ended, ClearRoster: true}); err != nil {
		t.Fatalf("end: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-updates:
			if r.Status == store.RoomStatusEnded {
				if len(r.Participants) != 0 {
					t.Fatalf("ended snapshot still lists participants")
				}
				return
			}
		case <-deadline:
			t.Fatalf("ended snapshot not delivered")
		}
	}
}
