package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/vovakirdan/fitroom-server/internal/store"
	"github.com/vovakirdan/fitroom-server/internal/store/storetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:", nil, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, err := NewWithSetup(":memory:", nil, nil, func(db *sql.DB) error {
		if err := Migrate(db); err != nil {
			return err
		}
		return Migrate(db)
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()
}

func TestParticipantsSurviveReload(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	room, err := s.CreateRoom(ctx, &store.Room{Code: "4321", Capacity: 3, Activity: "Push-up", CreatorID: "c"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	tests := []struct {
		name  string
		id    string
		score int
	}{
		{name: "first", id: "u1", score: 0},
		{name: "second", id: "u2", score: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := store.Participant{UserID: tt.id, DisplayName: tt.name, Score: tt.score}
			if _, err := s.AppendParticipant(ctx, room.ID, p, room.Capacity); err != nil {
				t.Fatalf("append %s: %v", tt.id, err)
			}
		})
	}

	reloaded, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(reloaded.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(reloaded.Participants))
	}
	if reloaded.Participants[1].Score != 7 || reloaded.Participants[1].DisplayName != "second" {
		t.Fatalf("unexpected participant: %+v", reloaded.Participants[1])
	}
	if reloaded.Participants[0].JoinedAt.IsZero() {
		t.Fatalf("joined_at not persisted")
	}
	if reloaded.CreatedAt.IsZero() || reloaded.UpdatedAt.Before(reloaded.CreatedAt) {
		t.Fatalf("timestamps not persisted: %v %v", reloaded.CreatedAt, reloaded.UpdatedAt)
	}
}
