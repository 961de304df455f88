package core

import (
	"errors"
	"testing"

	"github.com/vovakirdan/fitroom-server/internal/roomcode"
	"github.com/vovakirdan/fitroom-server/internal/store"
	"github.com/vovakirdan/fitroom-server/internal/store/memory"
	"github.com/vovakirdan/fitroom-server/internal/store/sqlite"
)

type storeFactory struct {
	name string
	open func(t *testing.T) store.Store
}

var storeFactories = []storeFactory{
	{name: "memory", open: func(t *testing.T) store.Store {
		return memory.New(nil)
	}},
	{name: "sqlite", open: func(t *testing.T) store.Store {
		st, err := sqlite.New(":memory:", nil, nil)
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		return st
	}},
}

// forEachStore runs fn once per store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, st store.Store)) {
	t.Helper()
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			st := f.open(t)
			t.Cleanup(func() { _ = st.Close() })
			fn(t, st)
		})
	}
}

func memoryStore(t *testing.T) store.Store {
	st := memory.New(nil)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestManager(st store.Store, codes ...string) *Manager {
	var gen roomcode.Generator
	if len(codes) > 0 {
		gen = roomcode.Sequence(codes...)
	}
	return NewManager(st, gen, Options{}, nil)
}

func mustCode(t *testing.T, err error, kind error, code string) {
	t.Helper()

	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var ce *CoreError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CoreError, got %T", err)
	}
	if ce.Code != code {
		t.Fatalf("expected code %s, got %s", code, ce.Code)
	}
}

func joiner(id string) Joiner {
	return Joiner{UserID: id, DisplayName: id}
}
